package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/rancher/vmstatus/api/v1alpha1"
	"github.com/rancher/vmstatus/internal/content"
	"github.com/rancher/vmstatus/internal/storage"
)

// Delegate implements the operations of one table.
type Delegate interface {
	Insert(ctx context.Context, uriData content.UriData, values *content.ContentValues) (*url.URL, error)
	BulkInsert(ctx context.Context, uriData content.UriData, values []*content.ContentValues) (int, error)
	Delete(ctx context.Context, uriData content.UriData, selection string, selectionArgs []any) (int64, error)
	Query(
		ctx context.Context, uriData content.UriData,
		projection []string, selection string, selectionArgs []any, sortOrder string,
	) (*storage.Cursor, error)
	Update(
		ctx context.Context, uriData content.UriData,
		values *content.ContentValues, selection string, selectionArgs []any,
	) (int64, error)
	GetType(uriData content.UriData) string
	OpenFile(ctx context.Context, uriData content.UriData, mode string) (*os.File, error)
}

var _ Delegate = &storage.StatusTable{}

// VoicemailProvider routes the operations on content URIs to the delegate of the addressed table.
type VoicemailProvider struct {
	authority string
	delegates map[string]Delegate
	logger    *slog.Logger
}

func NewVoicemailProvider(authority string, logger *slog.Logger) *VoicemailProvider {
	return &VoicemailProvider{
		authority: authority,
		delegates: make(map[string]Delegate),
		logger:    logger.With("component", "provider", "authority", authority),
	}
}

// NewStatusProvider returns a provider of v1alpha1.Authority serving the status table.
func NewStatusProvider(
	dbHelper storage.DBHelper, delegateHelper storage.DelegateHelper, resolver storage.ChangeWatcher, logger *slog.Logger,
) *VoicemailProvider {
	p := NewVoicemailProvider(v1alpha1.Authority, logger)
	p.Register(v1alpha1.StatusPath, storage.NewStatusTable(storage.StatusTableName, dbHelper, delegateHelper, resolver, logger))

	return p
}

// Register serves the URIs whose first path segment is table with delegate.
func (p *VoicemailProvider) Register(table string, delegate Delegate) {
	p.delegates[table] = delegate
}

func (p *VoicemailProvider) Insert(ctx context.Context, uri string, values *content.ContentValues) (*url.URL, error) {
	uriData, delegate, err := p.resolve(uri)
	if err != nil {
		return nil, err
	}
	if uriData.HasID() {
		return nil, fmt.Errorf("%w: cannot insert into %s", content.ErrInvalidURI, uri)
	}

	return delegate.Insert(ctx, uriData, values)
}

func (p *VoicemailProvider) BulkInsert(ctx context.Context, uri string, values []*content.ContentValues) (int, error) {
	uriData, delegate, err := p.resolve(uri)
	if err != nil {
		return 0, err
	}

	return delegate.BulkInsert(ctx, uriData, values)
}

func (p *VoicemailProvider) Delete(ctx context.Context, uri, selection string, selectionArgs []any) (int64, error) {
	uriData, delegate, err := p.resolve(uri)
	if err != nil {
		return 0, err
	}

	selection, err = restrictToCaller(ctx, selection)
	if err != nil {
		return 0, err
	}

	return delegate.Delete(ctx, uriData, selection, selectionArgs)
}

func (p *VoicemailProvider) Query(
	ctx context.Context, uri string, projection []string, selection string, selectionArgs []any, sortOrder string,
) (*storage.Cursor, error) {
	uriData, delegate, err := p.resolve(uri)
	if err != nil {
		return nil, err
	}

	selection, err = restrictToCaller(ctx, selection)
	if err != nil {
		return nil, err
	}

	return delegate.Query(ctx, uriData, projection, selection, selectionArgs, sortOrder)
}

func (p *VoicemailProvider) Update(
	ctx context.Context, uri string, values *content.ContentValues, selection string, selectionArgs []any,
) (int64, error) {
	uriData, delegate, err := p.resolve(uri)
	if err != nil {
		return 0, err
	}

	if err := checkSourcePackageIfSet(ctx, uriData, values); err != nil {
		return 0, err
	}

	selection, err = restrictToCaller(ctx, selection)
	if err != nil {
		return 0, err
	}

	return delegate.Update(ctx, uriData, values, selection, selectionArgs)
}

func (p *VoicemailProvider) GetType(uri string) (string, error) {
	uriData, delegate, err := p.resolve(uri)
	if err != nil {
		return "", err
	}

	return delegate.GetType(uriData), nil
}

func (p *VoicemailProvider) OpenFile(ctx context.Context, uri, mode string) (*os.File, error) {
	uriData, delegate, err := p.resolve(uri)
	if err != nil {
		return nil, err
	}

	return delegate.OpenFile(ctx, uriData, mode)
}

func (p *VoicemailProvider) resolve(uri string) (content.UriData, Delegate, error) {
	uriData, err := content.ParseURIData(uri)
	if err != nil {
		return content.UriData{}, nil, err
	}

	if uriData.Authority() != p.authority {
		return content.UriData{}, nil, fmt.Errorf("%w: %s: authority is not %s", ErrUnknownURI, uri, p.authority)
	}

	delegate, ok := p.delegates[uriData.Table()]
	if !ok {
		return content.UriData{}, nil, fmt.Errorf("%w: %s", ErrUnknownURI, uri)
	}

	p.logger.Debug("Resolved URI", "uri", uri, "table", uriData.Table())

	return uriData, delegate, nil
}

// restrictToCaller limits selection to the rows of the caller, unless the caller is privileged.
func restrictToCaller(ctx context.Context, selection string) (string, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return "", &IdentityRejectedError{Reason: "no calling package"}
	}
	if err := storage.ValidateSelection(selection); err != nil {
		return "", err
	}
	if caller.Privileged {
		return selection, nil
	}

	return content.ConcatenateClauses(selection, content.EqualityClause(v1alpha1.ColumnSourcePackage, caller.Package)), nil
}
