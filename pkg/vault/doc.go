// Package vault implements the encrypted working-copy manager for the
// estimate database.
//
// The encrypted file on disk is the durability boundary. While the
// application is open, the database lives as a plaintext SQLite working copy
// on a temporary path; mutations are folded back into the encrypted file by
// a debounced background flush, and one final synchronous flush runs at
// close. The working copy path is recorded as a breadcrumb in the settings
// store so an unflushed copy left by a crash can be recovered on the next
// start.
//
// On-disk format: nonce (12 bytes) || AES-256-GCM ciphertext+tag over the
// whole database image. A file of 12 bytes or fewer means "empty database",
// never corruption.
//
// # Usage
//
// Open a store with [StoreManager.Open] and close it when done:
//
//	mgr, err := vault.NewStoreManager(vault.Options{Settings: cfg})
//	if err != nil {
//	    return err
//	}
//	status, err := mgr.Open(ctx, "estimates.enc", password)
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close(ctx)
//
// # Concurrency
//
// RequestFlush never blocks and may be called from any goroutine. Commits of
// the tracked batch transaction happen only on the goroutine that opened the
// connection; at most one background encryption runs at a time.
package vault
