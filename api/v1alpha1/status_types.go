/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

// Authority is the content authority owning the voicemail tables.
const Authority = "com.android.voicemail"

const (
	// StatusPath is the path segment addressing the status table.
	StatusPath = "status"
	// StatusContentURI is the canonical URI of the status collection.
	StatusContentURI = "content://" + Authority + "/" + StatusPath

	// DirType is the MIME type of the status collection.
	DirType = "vnd.android.cursor.dir/voicemail.source.status"
	// ItemType is the MIME type of a single status row.
	ItemType = "vnd.android.cursor.item/voicemail.source.status"
)

// ActionProviderChanged is the change kind sent with every status notification.
const ActionProviderChanged = "android.intent.action.PROVIDER_CHANGED"

// ParamKeySourcePackage is the URI query parameter restricting an operation to one source package.
const ParamKeySourcePackage = "source_package"

// Status table columns.
const (
	ColumnID                       = "_id"
	ColumnConfigurationState       = "configuration_state"
	ColumnDataChannelState         = "data_channel_state"
	ColumnNotificationChannelState = "notification_channel_state"
	ColumnSettingsURI              = "settings_uri"
	ColumnSourcePackage            = "source_package"
	ColumnVoicemailAccessURI       = "voicemail_access_uri"
)

// Values of ColumnConfigurationState.
const (
	ConfigurationStateOK              = 0
	ConfigurationStateNotConfigured   = 1
	ConfigurationStateCanBeConfigured = 2
)

// Values of ColumnDataChannelState.
const (
	DataChannelStateOK           = 0
	DataChannelStateNoConnection = 1
)

// Values of ColumnNotificationChannelState.
const (
	NotificationChannelStateOK             = 0
	NotificationChannelStateNoConnection   = 1
	NotificationChannelStateMessageWaiting = 2
)

// Status is one row of the status table.
// Note: the struct fields must be exported in order to work.
type Status struct {
	ID                       int64   `db:"_id" json:"id"`
	SourcePackage            string  `db:"source_package" json:"sourcePackage"`
	SettingsURI              *string `db:"settings_uri" json:"settingsUri,omitempty"`
	VoicemailAccessURI       *string `db:"voicemail_access_uri" json:"voicemailAccessUri,omitempty"`
	ConfigurationState       *int64  `db:"configuration_state" json:"configurationState,omitempty"`
	DataChannelState         *int64  `db:"data_channel_state" json:"dataChannelState,omitempty"`
	NotificationChannelState *int64  `db:"notification_channel_state" json:"notificationChannelState,omitempty"`
}
