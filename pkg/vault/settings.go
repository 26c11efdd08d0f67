package vault

// Settings store keys used by the vault.
const (
	// SaltKey holds the base64-encoded key-derivation salt.
	SaltKey = "security/db_salt"
	// BreadcrumbKey holds the path of the current working copy so an
	// unflushed copy can be recovered after a crash. Cleared once the copy
	// is folded back into the encrypted file.
	BreadcrumbKey = "security/last_temp_db_path"
)

// Settings is the process-wide key-value settings collaborator. The vault
// uses it only for the salt and the recovery breadcrumb. Implementations
// must be safe for concurrent use; Sync must persist prior Set/Delete calls
// durably before returning.
type Settings interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
	Sync() error
}
