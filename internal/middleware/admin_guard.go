package middleware

import "github.com/sudo-init-do/chefbid/internal/auth"

// AdminGuard keeps the /admin routes to operators.
var AdminGuard = RequireRoles(auth.RoleAdmin)
