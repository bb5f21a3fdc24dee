package cache

import "strings"

const keySeparator = ":"

// JoinKey joins the non-empty parts with ":".
func JoinKey(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, keySeparator)
}

// LockKey namespaces a lock under "lock:<scope>" so it never shares a key with cached data.
func LockKey(scope, id string) string {
	return JoinKey("lock", scope, id)
}
