package provider

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/rancher/vmstatus/api/v1alpha1"
	"github.com/rancher/vmstatus/internal/content"
	"github.com/rancher/vmstatus/internal/messaging"
	"github.com/rancher/vmstatus/internal/notify"
	"github.com/rancher/vmstatus/internal/storage"
)

var _ storage.DelegateHelper = &DefaultDelegateHelper{}

// DefaultDelegateHelper checks the source package of written rows and broadcasts changes
// to the in-process resolver and, when a publisher is set, to other processes.
type DefaultDelegateHelper struct {
	resolver  *notify.Resolver
	publisher messaging.Publisher
	logger    *slog.Logger
}

// NewDefaultDelegateHelper returns a helper notifying resolver. publisher may be nil.
func NewDefaultDelegateHelper(resolver *notify.Resolver, publisher messaging.Publisher, logger *slog.Logger) *DefaultDelegateHelper {
	return &DefaultDelegateHelper{
		resolver:  resolver,
		publisher: publisher,
		logger:    logger.With("component", "delegate-helper"),
	}
}

// CheckAndAddSourcePackageIntoValues fills in the source package of values when it is missing,
// taking it from the URI or else from the caller, and rejects packages the caller may not write.
func (h *DefaultDelegateHelper) CheckAndAddSourcePackageIntoValues(
	ctx context.Context, uriData content.UriData, values *content.ContentValues,
) error {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return &IdentityRejectedError{Reason: "no calling package"}
	}

	if !values.ContainsKey(v1alpha1.ColumnSourcePackage) {
		sourcePackage := caller.Package
		if uriData.HasSourcePackage() {
			sourcePackage = uriData.SourcePackage()
		}
		values.Put(v1alpha1.ColumnSourcePackage, sourcePackage)
	}

	sourcePackage, _ := values.GetAsString(v1alpha1.ColumnSourcePackage)

	return checkSourcePackage(caller, uriData, sourcePackage)
}

// checkSourcePackageIfSet rejects update values moving rows to a package the caller may not write.
// Values without a source package are left alone.
func checkSourcePackageIfSet(ctx context.Context, uriData content.UriData, values *content.ContentValues) error {
	if values == nil || !values.ContainsKey(v1alpha1.ColumnSourcePackage) {
		return nil
	}

	caller, ok := CallerFromContext(ctx)
	if !ok {
		return &IdentityRejectedError{Reason: "no calling package"}
	}

	sourcePackage, _ := values.GetAsString(v1alpha1.ColumnSourcePackage)

	return checkSourcePackage(caller, uriData, sourcePackage)
}

func checkSourcePackage(caller Caller, uriData content.UriData, sourcePackage string) error {
	if uriData.HasSourcePackage() && uriData.SourcePackage() != sourcePackage {
		return &IdentityRejectedError{
			Package: sourcePackage,
			Reason:  "source package differs from the one of " + uriData.String(),
		}
	}

	if !caller.Privileged && sourcePackage != caller.Package {
		return &IdentityRejectedError{
			Package: sourcePackage,
			Reason:  "caller " + caller.Package + " does not have write access",
		}
	}

	return nil
}

// NotifyChange broadcasts a change of uri. Delivery failures are logged.
func (h *DefaultDelegateHelper) NotifyChange(ctx context.Context, uri *url.URL, action string) {
	event := notify.NewChangeEvent(uri.String(), action)

	if err := h.resolver.Notify(event); err != nil {
		h.logger.ErrorContext(ctx, "Failed to notify observers", "uri", event.URI, "error", err)
	}

	if h.publisher == nil {
		return
	}

	message := &messaging.ProviderChanged{
		ID:        event.ID,
		URI:       event.URI,
		Action:    event.Action,
		Timestamp: event.Timestamp,
	}
	if err := h.publisher.Publish(ctx, message); err != nil {
		h.logger.ErrorContext(ctx, "Failed to publish change", "uri", event.URI, "error", err)
	}
}

// RelayChanges returns a handler forwarding the changes published by other processes to resolver.
func RelayChanges(resolver *notify.Resolver) messaging.HandlerFunc {
	return func(_ context.Context, message *messaging.ProviderChanged) error {
		return resolver.Notify(&notify.ChangeEvent{
			ID:        message.ID,
			URI:       message.URI,
			Action:    message.Action,
			Timestamp: message.Timestamp,
		})
	}
}
