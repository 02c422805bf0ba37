package resource

import (
	"strconv"

	"github.com/pitabwire/flagconsole/internal/formsession"
	"github.com/pitabwire/flagconsole/internal/listing"
	"github.com/pitabwire/flagconsole/internal/sorting"
	"github.com/pitabwire/flagconsole/model"
)

const (
	nameMaxLength        = 50
	descriptionMaxLength = 100
	urlCodeMaxLength     = 50
)

var (
	byCreatedDesc = model.SortSpec{OrderBy: "CREATED_AT", Direction: model.SortDESC}
	byNameDesc    = model.SortSpec{OrderBy: "NAME", Direction: model.SortDESC}
)

// enabledFilter maps the list's enabled=true|false option to the API's
// disabled flag.
var enabledFilter = listing.Filter{Option: "enabled", Param: "disabled", Kind: listing.FilterInverted}

func itoa32(n int32) string { return strconv.FormatInt(int64(n), 10) }

func enableable[T any](disabled func(T) bool) []Action[T] {
	return []Action[T]{
		{Kind: model.ConfirmEnable, Applies: disabled},
		{Kind: model.ConfirmDisable, Applies: func(item T) bool { return !disabled(item) }},
	}
}

// Accounts are the console users of the current environment, keyed by email.
func Accounts() *Descriptor[model.Account] {
	return &Descriptor[model.Account]{
		Name: "accounts",
		List: listing.Descriptor{
			Resource: "accounts",
			PageSize: listing.DefaultPageSize,
			Sort: sorting.Standard("CREATED_AT", "EMAIL",
				model.SortSpec{OrderBy: "EMAIL", Direction: model.SortDESC}, false),
			Filters: []listing.Filter{
				{Option: "role", Param: "role", Kind: listing.FilterNumber},
				enabledFilter,
			},
		},
		Add: &formsession.Schema{Fields: []formsession.Field{
			{Name: "email", Rules: []formsession.Rule{formsession.Required(), formsession.Email()}, Unique: true},
			{Name: "name", Rules: []formsession.Rule{formsession.MaxLength(nameMaxLength)}},
			{Name: "role", Rules: []formsession.Rule{formsession.Required(), formsession.Integer()}, Default: itoa32(model.AccountRoleViewer)},
		}},
		Update: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.MaxLength(nameMaxLength)}},
			{Name: "role", Rules: []formsession.Rule{formsession.Required(), formsession.Integer()}},
		}},
		Seed: func(a model.Account) map[string]any {
			return map[string]any{"email": a.Email, "name": a.Name, "role": itoa32(a.Role)}
		},
		BuildCreate: func(st model.FormState) any {
			return CreateAccountCommand{
				Email: formsession.String(st.Values["email"]),
				Name:  formsession.String(st.Values["name"]),
				Role:  formsession.Int32(st.Values["role"]),
			}
		},
		BuildUpdate: func(st model.FormState) any {
			return UpdateAccountCommand{
				Name: dirtyString(st, "name"),
				Role: dirtyInt32(st, "role"),
			}
		},
		Actions: enableable(func(a model.Account) bool { return a.Disabled }),
		ID:      func(a model.Account) string { return a.Email },
		Label:   func(a model.Account) string { return a.Email },
		Methods: Methods{
			List:   "ListAccounts",
			Get:    "GetAccount",
			Create: "CreateAccount",
			Update: "UpdateAccount",
			Actions: map[model.ConfirmationKind]string{
				model.ConfirmEnable:  "EnableAccount",
				model.ConfirmDisable: "DisableAccount",
			},
			ItemsKey: "accounts",
			ItemKey:  "account",
			IDParam:  "email",
		},
	}
}

// APIKeys are the SDK and service keys of the current environment.
func APIKeys() *Descriptor[model.APIKey] {
	return &Descriptor[model.APIKey]{
		Name: "apikeys",
		List: listing.Descriptor{
			Resource: "apikeys",
			PageSize: listing.DefaultPageSize,
			Sort:     sorting.Standard("CREATED_AT", "NAME", byNameDesc, false),
			Filters:  []listing.Filter{enabledFilter},
		},
		Add: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}, Unique: true},
			{Name: "role", Rules: []formsession.Rule{formsession.Required(), formsession.Integer()}, Default: itoa32(model.APIKeyRoleSDK)},
		}},
		Update: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}, Unique: true},
		}},
		Seed: func(k model.APIKey) map[string]any {
			return map[string]any{"name": k.Name, "role": itoa32(k.Role)}
		},
		BuildCreate: func(st model.FormState) any {
			return CreateAPIKeyCommand{
				Name: formsession.String(st.Values["name"]),
				Role: formsession.Int32(st.Values["role"]),
			}
		},
		BuildUpdate: func(st model.FormState) any {
			return UpdateAPIKeyCommand{Name: dirtyString(st, "name")}
		},
		Actions: enableable(func(k model.APIKey) bool { return k.Disabled }),
		ID:      func(k model.APIKey) string { return k.ID },
		Label:   func(k model.APIKey) string { return k.Name },
		Methods: Methods{
			List:   "ListAPIKeys",
			Get:    "GetAPIKey",
			Create: "CreateAPIKey",
			Update: "UpdateAPIKey",
			Actions: map[model.ConfirmationKind]string{
				model.ConfirmEnable:  "EnableAPIKey",
				model.ConfirmDisable: "DisableAPIKey",
			},
			ItemsKey: "apiKeys",
			ItemKey:  "apiKey",
		},
	}
}

// AuditLogs are read-only.
func AuditLogs() *Descriptor[model.AuditLog] {
	return &Descriptor[model.AuditLog]{
		Name: "auditlogs",
		List: listing.Descriptor{
			Resource: "auditlogs",
			PageSize: listing.DefaultPageSize,
			Sort: sorting.NewTable(sorting.DefaultToken,
				model.SortSpec{OrderBy: "TIMESTAMP", Direction: model.SortDESC},
				[]sorting.Entry{
					{Token: sorting.CreatedAtAsc, Spec: model.SortSpec{OrderBy: "TIMESTAMP", Direction: model.SortASC}},
					{Token: sorting.CreatedAtDesc, Spec: model.SortSpec{OrderBy: "TIMESTAMP", Direction: model.SortDESC}},
				}),
			Filters: []listing.Filter{
				{Option: "from", Param: "from", Kind: listing.FilterNumber},
				{Option: "to", Param: "to", Kind: listing.FilterNumber},
				{Option: "entityType", Param: "entityType", Kind: listing.FilterNumber},
			},
		},
		ID:    func(l model.AuditLog) string { return l.ID },
		Label: func(l model.AuditLog) string { return l.EntityID },
		Methods: Methods{
			List:     "ListAuditLogs",
			ItemsKey: "auditLogs",
		},
	}
}

// Environments belong to projects.
func Environments() *Descriptor[model.Environment] {
	return &Descriptor[model.Environment]{
		Name: "environments",
		List: listing.Descriptor{
			Resource: "environments",
			PageSize: listing.DefaultPageSize,
			Sort:     sorting.Standard("CREATED_AT", "NAME", byCreatedDesc, true),
			Filters: []listing.Filter{
				{Option: "projectId", Param: "projectId", Kind: listing.FilterString},
			},
		},
		Add: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "urlCode", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(urlCodeMaxLength), formsession.Identifier()}, Unique: true},
			{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
			{Name: "projectId", Rules: []formsession.Rule{formsession.Required()}},
		}},
		Update: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
		}},
		AddSeed: func(options model.SearchOptions) map[string]any {
			if id, ok := options["projectId"].(string); ok && id != "" {
				return map[string]any{"projectId": id}
			}
			return nil
		},
		Seed: func(e model.Environment) map[string]any {
			return map[string]any{
				"name": e.Name, "urlCode": e.URLCode,
				"description": e.Description, "projectId": e.ProjectID,
			}
		},
		BuildCreate: func(st model.FormState) any {
			return CreateEnvironmentCommand{
				Name:        formsession.String(st.Values["name"]),
				URLCode:     formsession.String(st.Values["urlCode"]),
				Description: formsession.String(st.Values["description"]),
				ProjectID:   formsession.String(st.Values["projectId"]),
			}
		},
		BuildUpdate: func(st model.FormState) any {
			return UpdateEnvironmentCommand{
				Name:        dirtyString(st, "name"),
				Description: dirtyString(st, "description"),
			}
		},
		Actions: []Action[model.Environment]{
			{Kind: model.ConfirmArchive, Applies: func(e model.Environment) bool { return !e.Archived }},
		},
		ID:    func(e model.Environment) string { return e.ID },
		Label: func(e model.Environment) string { return e.Name },
		Methods: Methods{
			List:   "ListEnvironments",
			Get:    "GetEnvironment",
			Create: "CreateEnvironment",
			Update: "UpdateEnvironment",
			Actions: map[model.ConfirmationKind]string{
				model.ConfirmArchive: "ArchiveEnvironment",
			},
			ItemsKey: "environments",
			ItemKey:  "environment",
		},
	}
}

// projectQuery is the list query of one project's environments.
type projectQuery struct {
	ProjectID string `url:"projectId"`
}

// Projects group environments. Trial projects can be converted.
func Projects() *Descriptor[model.Project] {
	actions := enableable(func(p model.Project) bool { return p.Disabled })
	actions = append(actions, Action[model.Project]{
		Kind:    model.ConfirmConvert,
		Applies: func(p model.Project) bool { return p.Trial },
	})
	return &Descriptor[model.Project]{
		Name: "projects",
		List: listing.Descriptor{
			Resource: "projects",
			PageSize: listing.DefaultPageSize,
			Sort:     sorting.Standard("CREATED_AT", "NAME", byCreatedDesc, true),
			Filters:  []listing.Filter{enabledFilter},
		},
		Add: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "urlCode", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(urlCodeMaxLength), formsession.Identifier()}, Unique: true},
			{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
		}},
		Update: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
		}},
		Seed: func(p model.Project) map[string]any {
			return map[string]any{"name": p.Name, "urlCode": p.URLCode, "description": p.Description}
		},
		BuildCreate: func(st model.FormState) any {
			return CreateProjectCommand{
				Name:        formsession.String(st.Values["name"]),
				URLCode:     formsession.String(st.Values["urlCode"]),
				Description: formsession.String(st.Values["description"]),
			}
		},
		BuildUpdate: func(st model.FormState) any {
			return UpdateProjectCommand{
				Name:        dirtyString(st, "name"),
				Description: dirtyString(st, "description"),
			}
		},
		Actions: actions,
		Drills: []Drill[model.Project]{{
			Resource: "environments",
			Query:    func(p model.Project) any { return projectQuery{ProjectID: p.ID} },
		}},
		ID:    func(p model.Project) string { return p.ID },
		Label: func(p model.Project) string { return p.Name },
		Methods: Methods{
			List:   "ListProjects",
			Get:    "GetProject",
			Create: "CreateProject",
			Update: "UpdateProject",
			Actions: map[model.ConfirmationKind]string{
				model.ConfirmEnable:  "EnableProject",
				model.ConfirmDisable: "DisableProject",
				model.ConfirmConvert: "ConvertTrialProject",
			},
			ItemsKey: "projects",
			ItemKey:  "project",
		},
	}
}

// Notifications are subscriptions delivering platform events to Slack.
func Notifications() *Descriptor[model.Subscription] {
	actions := enableable(func(s model.Subscription) bool { return s.Disabled })
	actions = append(actions, Action[model.Subscription]{Kind: model.ConfirmDelete})
	return &Descriptor[model.Subscription]{
		Name: "notifications",
		List: listing.Descriptor{
			Resource: "notifications",
			PageSize: listing.DefaultPageSize,
			Sort:     sorting.Standard("CREATED_AT", "NAME", byCreatedDesc, true),
			Filters:  []listing.Filter{enabledFilter},
		},
		Add: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "sourceTypes", Rules: []formsession.Rule{formsession.MinSelected(1)}},
			{Name: "slackChannelUrl", Rules: []formsession.Rule{formsession.Required(), formsession.URL()}},
		}},
		Update: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "sourceTypes", Rules: []formsession.Rule{formsession.MinSelected(1)}},
		}},
		Seed: func(s model.Subscription) map[string]any {
			types := make([]any, len(s.SourceTypes))
			for i, t := range s.SourceTypes {
				types[i] = itoa32(t)
			}
			return map[string]any{
				"name": s.Name, "sourceTypes": types,
				"slackChannelUrl": s.Recipient.SlackChannelURL,
			}
		},
		BuildCreate: func(st model.FormState) any {
			return CreateSubscriptionCommand{
				Name:        formsession.String(st.Values["name"]),
				SourceTypes: formsession.Int32s(st.Values["sourceTypes"]),
				Recipient: model.Recipient{
					Type:            model.RecipientSlackChannel,
					SlackChannelURL: formsession.String(st.Values["slackChannelUrl"]),
				},
			}
		},
		BuildUpdate: func(st model.FormState) any {
			return UpdateSubscriptionCommand{
				Name:        dirtyString(st, "name"),
				SourceTypes: dirtyInt32s(st, "sourceTypes"),
			}
		},
		Actions: actions,
		ID:      func(s model.Subscription) string { return s.ID },
		Label:   func(s model.Subscription) string { return s.Name },
		Methods: Methods{
			List:   "ListSubscriptions",
			Get:    "GetSubscription",
			Create: "CreateSubscription",
			Update: "UpdateSubscription",
			Actions: map[model.ConfirmationKind]string{
				model.ConfirmEnable:  "EnableSubscription",
				model.ConfirmDisable: "DisableSubscription",
				model.ConfirmDelete:  "DeleteSubscription",
			},
			ItemsKey: "subscriptions",
			ItemKey:  "subscription",
		},
	}
}

// Pushes are FCM push targets.
func Pushes() *Descriptor[model.Push] {
	return &Descriptor[model.Push]{
		Name: "pushes",
		List: listing.Descriptor{
			Resource: "pushes",
			PageSize: listing.DefaultPageSize,
			Sort:     sorting.Standard("CREATED_AT", "NAME", byCreatedDesc, true),
		},
		Add: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "fcmApiKey", Rules: []formsession.Rule{formsession.Required()}},
			{Name: "tags", Rules: []formsession.Rule{formsession.MinSelected(1)}},
		}},
		Update: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "tags", Rules: []formsession.Rule{formsession.MinSelected(1)}},
		}},
		Seed: func(p model.Push) map[string]any {
			tags := make([]any, len(p.Tags))
			for i, t := range p.Tags {
				tags[i] = t
			}
			return map[string]any{"name": p.Name, "tags": tags}
		},
		BuildCreate: func(st model.FormState) any {
			return CreatePushCommand{
				Name:      formsession.String(st.Values["name"]),
				FCMAPIKey: formsession.String(st.Values["fcmApiKey"]),
				Tags:      formsession.Strings(st.Values["tags"]),
			}
		},
		BuildUpdate: func(st model.FormState) any {
			return UpdatePushCommand{
				Name: dirtyString(st, "name"),
				Tags: dirtyStrings(st, "tags"),
			}
		},
		Actions: []Action[model.Push]{{Kind: model.ConfirmDelete}},
		ID:      func(p model.Push) string { return p.ID },
		Label:   func(p model.Push) string { return p.Name },
		Methods: Methods{
			List:   "ListPushes",
			Get:    "GetPush",
			Create: "CreatePush",
			Update: "UpdatePush",
			Actions: map[model.ConfirmationKind]string{
				model.ConfirmDelete: "DeletePush",
			},
			ItemsKey: "pushes",
			ItemKey:  "push",
		},
	}
}

// Webhooks are inbound endpoints that trigger auto operations.
func Webhooks() *Descriptor[model.Webhook] {
	return &Descriptor[model.Webhook]{
		Name: "webhooks",
		List: listing.Descriptor{
			Resource: "webhooks",
			PageSize: listing.DefaultPageSize,
			Sort:     sorting.Standard("CREATED_AT", "NAME", byCreatedDesc, true),
		},
		Add: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
		}},
		Update: &formsession.Schema{Fields: []formsession.Field{
			{Name: "name", Rules: []formsession.Rule{formsession.Required(), formsession.MaxLength(nameMaxLength)}},
			{Name: "description", Rules: []formsession.Rule{formsession.MaxLength(descriptionMaxLength)}},
		}},
		Seed: func(w model.Webhook) map[string]any {
			return map[string]any{"name": w.Name, "description": w.Description}
		},
		BuildCreate: func(st model.FormState) any {
			return CreateWebhookCommand{
				Name:        formsession.String(st.Values["name"]),
				Description: formsession.String(st.Values["description"]),
			}
		},
		BuildUpdate: func(st model.FormState) any {
			return UpdateWebhookCommand{
				Name:        dirtyString(st, "name"),
				Description: dirtyString(st, "description"),
			}
		},
		Actions: []Action[model.Webhook]{{Kind: model.ConfirmDelete}},
		ID:      func(w model.Webhook) string { return w.ID },
		Label:   func(w model.Webhook) string { return w.Name },
		Methods: Methods{
			List:   "ListWebhooks",
			Get:    "GetWebhook",
			Create: "CreateWebhook",
			Update: "UpdateWebhook",
			Actions: map[model.ConfirmationKind]string{
				model.ConfirmDelete: "DeleteWebhook",
			},
			ItemsKey: "webhooks",
			ItemKey:  "webhook",
		},
	}
}
