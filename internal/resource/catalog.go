package resource

// Names lists the console's resources in navigation order.
func Names() []string {
	return []string{
		"features", "experiments", "goals", "eventrates",
		"pushes", "notifications", "webhooks", "apikeys",
		"accounts", "environments", "projects", "auditlogs",
	}
}
