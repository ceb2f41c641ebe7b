// Package submission provides the core types for the regulatory submission
// packaging and transport subsystem.
//
// This package contains type definitions, the sequence state machine, and
// the error taxonomy. All other internal packages import submission;
// submission imports nothing internal. This ensures it remains the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - SequenceDocument holds IDs, never live object references
//   - All content hashes are lowercase hex SHA-256
//   - Relative paths are slash-separated and NFC-normalized before hashing
//     or sorting so output is identical across platforms
package submission
