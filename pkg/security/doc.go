/*
Package security provides the cryptographic services a jmapcore deployment
needs to run as a cluster rather than a single process: a root Certificate
Authority issuing mutual-TLS certificates for Raft peer transport, and a
SecretsManager for encrypting credentials at rest.

# Architecture

	┌─────────────────────────────────────────────────────┐
	│                 Security Architecture                │
	└─────┬───────────────────────────────┬────────────────┘
	      │                               │
	      ▼                               ▼
	┌─────────────┐               ┌────────────────┐
	│  SecretsMgr │               │ CertAuthority  │
	│ AES-256-GCM │               │  RSA 4096 root │
	└─────────────┘               └────────┬───────┘
	                                        │
	                               IssuePeerCertificate
	                               IssueClientCertificate

## Cluster encryption key

Every node derives the same 32-byte key from the cluster ID:

	clusterKey = SHA-256(clusterID)

This key encrypts the CA's root private key at rest (CertAuthority.SaveToStore)
and is the default key a SecretsManager is built from via
NewSecretsManagerFromPassword. It must be supplied identically on every peer
joining the cluster — losing it means losing the ability to decrypt the root
CA key and any secrets encrypted under it.

# Certificate Authority

The CA uses a two-tier hierarchy: a long-lived, self-signed root, and
short-lived peer/client leaves signed by it.

	Root CA (self-signed)
	├── 10-year validity, RSA 4096-bit
	├── KeyUsage: CertSign, CRLSign
	└── Subject: CN=jmapcore Root CA, O=jmapcore cluster

	Peer certificate (IssuePeerCertificate)
	├── 90-day validity, RSA 2048-bit
	├── ExtKeyUsage: ServerAuth, ClientAuth (peers dial each other both ways)
	└── Subject: CN={shard}-{peerID}, O=jmapcore cluster

	Client certificate (IssueClientCertificate)
	├── 90-day validity, RSA 2048-bit
	├── ExtKeyUsage: ClientAuth
	└── Subject: CN=cli-{clientID}, O=jmapcore cluster

Peer certificates authenticate the AppendEntries/RequestVote RPCs a Raft
node's transport makes to and accepts from its peers (RequestVote in
particular must resist a node with network access but no peer certificate
casting a binding vote). Client certificates authenticate CLI/admin
connections to a node's control API, independent of Raft peer membership.

The CA persists its root cert/key through the CAStore interface (castore.go)
rather than the document store — a CA is a single opaque blob, not an
(account, collection, document) keyed value, so it gets its own small BoltDB
file (security.db) following the same per-concern-own-bolt-file pattern
pkg/raft/storage.go uses for its log and stable stores.

# Usage

	clusterKey := security.DeriveKeyFromClusterID(clusterID)
	if err := security.SetClusterEncryptionKey(clusterKey); err != nil {
		return err
	}

	store, err := security.OpenCAStore(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		// first boot: generate and persist a new root
		if err := ca.Initialize(); err != nil {
			return err
		}
		if err := ca.SaveToStore(); err != nil {
			return err
		}
	}

	cert, err := ca.IssuePeerCertificate(peerID, shard, dnsNames, ipAddresses)
	if err != nil {
		return err
	}
	if err := security.SaveCertToFile(cert, certDir); err != nil {
		return err
	}

Certificate rotation is caller-driven: CertNeedsRotation(cert) reports true
once fewer than 30 days remain, at which point the caller re-issues via the
same IssuePeerCertificate/IssueClientCertificate call and overwrites the
saved files.

# Threat model

Protects against network eavesdropping (TLS), peer impersonation (mTLS with
CA-signed certs), and tampering with encrypted-at-rest secrets (AES-256-GCM's
authentication tag). Does not protect against a compromised cluster
encryption key or a compromised CA private key — both require operational
controls (HSM-backed storage, restricted access to data directories)
outside this package's scope.
*/
package security
