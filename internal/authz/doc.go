// Package authz decides what an authenticated user may do. Permissions
// are route grants: a role holds (method, path template) pairs, and a
// request is allowed when any role of the user grants a matching pair.
// Path templates use {name} placeholders that match exactly one path
// segment.
//
// Agent visibility is a separate Scope with three explicit states:
// Unrestricted (superusers), Restricted (the union of role agent
// grants), and NoAccess (no roles or no grants). The empty grant set is
// never treated as "everything".
package authz
