package storage

import "encoding/binary"

// POSIX ACL xattr layout, as read by the kernel from system.posix_acl_access.
const (
	posixACLXattr   = "system.posix_acl_access"
	posixACLVersion = 2

	aclUserObj  = 0x01
	aclUser     = 0x02
	aclGroupObj = 0x04
	aclMask     = 0x10
	aclOther    = 0x20

	aclUndefinedID = 0xFFFFFFFF
)

// encodeOwnerOnlyACL returns an access ACL granting rwx to the owning user
// and to uid by name, and nothing to group or other. Entries are in tag
// order as the kernel requires.
func encodeOwnerOnlyACL(uid uint32) []byte {
	entries := []struct {
		tag  uint16
		perm uint16
		id   uint32
	}{
		{aclUserObj, 7, aclUndefinedID},
		{aclUser, 7, uid},
		{aclGroupObj, 0, aclUndefinedID},
		{aclMask, 7, aclUndefinedID},
		{aclOther, 0, aclUndefinedID},
	}

	buf := make([]byte, 4+8*len(entries))
	binary.LittleEndian.PutUint32(buf[0:4], posixACLVersion)
	for i, e := range entries {
		off := 4 + 8*i
		binary.LittleEndian.PutUint16(buf[off:], e.tag)
		binary.LittleEndian.PutUint16(buf[off+2:], e.perm)
		binary.LittleEndian.PutUint32(buf[off+4:], e.id)
	}
	return buf
}
