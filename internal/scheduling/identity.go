package scheduling

// Identity is the authenticated caller.  Roles are resolved when the
// token is issued; the scheduling core only ever sees the resulting flag.
type Identity struct {
	UserID  uint64
	IsAdmin bool
}

// CanManage reports whether the caller may modify or cancel an
// appointment owned by ownerID.
func (id Identity) CanManage(ownerID uint64) bool {
	return id.IsAdmin || id.UserID == ownerID
}
