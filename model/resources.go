package model

// Items returned by the platform gateway. JSON names follow the gateway's
// lowerCamelCase encoding; 64-bit integers travel as strings and enums as
// their numeric values.

// Account roles within an environment.
const (
	AccountRoleViewer     int32 = 0
	AccountRoleEditor     int32 = 1
	AccountRoleOwner      int32 = 2
	AccountRoleUnassigned int32 = 99
)

// Account is a console user in the current environment.
type Account struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Role      int32  `json:"role"`
	Disabled  bool   `json:"disabled"`
	CreatedAt int64  `json:"createdAt,string"`
	UpdatedAt int64  `json:"updatedAt,string"`
}

// API key roles.
const (
	APIKeyRoleSDK     int32 = 0
	APIKeyRoleService int32 = 1
)

// APIKey is an SDK or service key of an environment.
type APIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      int32  `json:"role"`
	Disabled  bool   `json:"disabled"`
	CreatedAt int64  `json:"createdAt,string"`
	UpdatedAt int64  `json:"updatedAt,string"`
}

// AuditLog is one recorded change to an entity.
type AuditLog struct {
	ID               string `json:"id"`
	Timestamp        int64  `json:"timestamp,string"`
	EntityType       int32  `json:"entityType"`
	EntityID         string `json:"entityId"`
	Type             int32  `json:"type"`
	Editor           string `json:"editor"`
	LocalizedMessage string `json:"localizedMessage,omitempty"`
}

// Environment belongs to a project.
type Environment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URLCode     string `json:"urlCode"`
	Description string `json:"description,omitempty"`
	ProjectID   string `json:"projectId"`
	Archived    bool   `json:"archived"`
	CreatedAt   int64  `json:"createdAt,string"`
	UpdatedAt   int64  `json:"updatedAt,string"`
}

// Project groups environments. Trial projects can be converted to regular
// projects.
type Project struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	URLCode      string `json:"urlCode"`
	Description  string `json:"description,omitempty"`
	Disabled     bool   `json:"disabled"`
	Trial        bool   `json:"trial"`
	CreatorEmail string `json:"creatorEmail,omitempty"`
	CreatedAt    int64  `json:"createdAt,string"`
	UpdatedAt    int64  `json:"updatedAt,string"`
}

// Recipient types of a notification subscription.
const (
	RecipientSlackChannel int32 = 0
)

// Recipient is where a notification subscription delivers.
type Recipient struct {
	Type            int32  `json:"type"`
	SlackChannelURL string `json:"slackChannelUrl,omitempty"`
}

// Subscription is a notification subscription.
type Subscription struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SourceTypes []int32   `json:"sourceTypes"`
	Recipient   Recipient `json:"recipient"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   int64     `json:"createdAt,string"`
	UpdatedAt   int64     `json:"updatedAt,string"`
}

// Push is a push notification target.
type Push struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	FCMAPIKey string   `json:"fcmApiKey,omitempty"`
	Tags      []string `json:"tags"`
	Deleted   bool     `json:"deleted"`
	CreatedAt int64    `json:"createdAt,string"`
	UpdatedAt int64    `json:"updatedAt,string"`
}

// Webhook is an inbound webhook endpoint.
type Webhook struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	CreatedAt   int64  `json:"createdAt,string"`
	UpdatedAt   int64  `json:"updatedAt,string"`
}

// Goal is a measurable event used by experiments and auto operations.
type Goal struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Deleted     bool   `json:"deleted"`
	IsInUse     bool   `json:"isInUseStatus"`
	Archived    bool   `json:"archived"`
	CreatedAt   int64  `json:"createdAt,string"`
	UpdatedAt   int64  `json:"updatedAt,string"`
}

// Experiment statuses.
const (
	ExperimentWaiting      int32 = 0
	ExperimentRunning      int32 = 1
	ExperimentStopped      int32 = 2
	ExperimentForceStopped int32 = 3
)

// Experiment runs a feature against one or more goals.
type Experiment struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	FeatureID   string   `json:"featureId"`
	GoalIDs     []string `json:"goalIds"`
	Status      int32    `json:"status"`
	StartAt     int64    `json:"startAt,string"`
	StopAt      int64    `json:"stopAt,string"`
	Archived    bool     `json:"archived"`
	Maintainer  string   `json:"maintainer,omitempty"`
	CreatedAt   int64    `json:"createdAt,string"`
	UpdatedAt   int64    `json:"updatedAt,string"`
}

// Variation is one value a feature flag can serve.
type Variation struct {
	ID          string `json:"id"`
	Value       string `json:"value"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Feature is a feature flag.
type Feature struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	Enabled       bool        `json:"enabled"`
	Archived      bool        `json:"archived"`
	Tags          []string    `json:"tags"`
	Maintainer    string      `json:"maintainer,omitempty"`
	VariationType int32       `json:"variationType"`
	Variations    []Variation `json:"variations"`
	CreatedAt     int64       `json:"createdAt,string"`
	UpdatedAt     int64       `json:"updatedAt,string"`
}

// Event-rate comparison operators.
const (
	OperatorGreaterOrEqual int32 = 0
	OperatorLessOrEqual    int32 = 1
)

// EventRateRule is an auto operation that changes a feature when the rate of
// goal events for one variation crosses a threshold. ThreadsholdRate is a
// ratio in (0, 1].
type EventRateRule struct {
	ID              string  `json:"id"`
	FeatureID       string  `json:"featureId"`
	GoalID          string  `json:"goalId"`
	VariationID     string  `json:"variationId"`
	MinCount        int64   `json:"minCount,string"`
	ThreadsholdRate float64 `json:"threadsholdRate"`
	Operator        int32   `json:"operator"`
	Triggered       bool    `json:"triggered"`
	CreatedAt       int64   `json:"createdAt,string"`
	UpdatedAt       int64   `json:"updatedAt,string"`
}
