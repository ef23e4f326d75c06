package state

var (
	transferPrefix       = []byte("transfer/")
	contractConfigKey    = []byte("contract/config")
	contractVersionKey   = []byte("contract/version")
	legacyConfigKey      = []byte("\x00\x06config")
	markerPrefix         = []byte("marker/")
	balancePrefix        = []byte("balance/")
	grantPrefix          = []byte("grant/")
	noncePrefix          = []byte("nonce/")
	quotaPrefix          = []byte("quota/")
	keySeparator    byte = '/'
)

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for i, p := range parts {
		size += len(p)
		if i > 0 {
			size++
		}
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, keySeparator)
		}
		buf = append(buf, p...)
	}
	return buf
}

// TransferKey returns the storage key of a transfer record. Keys sort in the
// same order as ids.
func TransferKey(id string) []byte { return prefixedKey(transferPrefix, []byte(id)) }

// MarkerKey returns the storage key of a marker definition.
func MarkerKey(denom string) []byte { return prefixedKey(markerPrefix, []byte(denom)) }

// BalanceKey returns the storage key of an account balance.
func BalanceKey(account [20]byte, denom string) []byte {
	return prefixedKey(balancePrefix, []byte(denom), account[:])
}

// GrantKey returns the storage key of an authorization grant.
func GrantKey(granter, grantee [20]byte, denom string) []byte {
	return prefixedKey(grantPrefix, granter[:], grantee[:], []byte(denom))
}

// NonceKey returns the storage key of an account's next transaction nonce.
func NonceKey(account [20]byte) []byte { return prefixedKey(noncePrefix, account[:]) }

// QuotaKey returns the storage key of an account's proposal counters.
func QuotaKey(account [20]byte) []byte { return prefixedKey(quotaPrefix, account[:]) }
