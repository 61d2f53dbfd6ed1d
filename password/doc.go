// Package password hashes and verifies account passwords with argon2id.
//
// Hashes use the PHC string format with unpadded base64 segments:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// Verification reads the cost from the hash itself, so hashes written under
// an older configuration keep verifying after the cost is raised.
// [Argon2.DummyHash] is verified against for unknown phone numbers so a
// lookup miss costs the same as a wrong password.
//
// Passwords are 8 to [DefaultMaxPasswordBytes] bytes unless
// Config.MaxPasswordBytes says otherwise. Oversized input is rejected before
// any hashing work: Hash returns [ErrPasswordTooLong] and Verify reports a
// mismatch.
package password
