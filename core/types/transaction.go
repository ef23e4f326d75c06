package types

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeExecute TxType = 0x01 // Execute message routed to the transfer contract
	TxTypeGrant   TxType = 0x02 // Authorization grant letting the contract move the signer's asset
)

// Valid reports whether the type is one the node knows how to route.
func (t TxType) Valid() bool {
	return t == TxTypeExecute || t == TxTypeGrant
}

// Transaction is the signed envelope submitted to the node. The sender is not
// carried explicitly; it is recovered from the signature.
type Transaction struct {
	Type    TxType          `json:"type"`
	ChainID string          `json:"chainId"`
	Nonce   uint64          `json:"nonce"`
	Data    json.RawMessage `json:"data"`
	Funds   []Coin          `json:"funds,omitempty"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from *[20]byte
}

// Hash covers every field except the signature.
func (tx *Transaction) Hash() ([]byte, error) {
	txData := struct {
		Type    TxType
		ChainID string
		Nonce   uint64
		Data    []byte
		Funds   []Coin
	}{tx.Type, tx.ChainID, tx.Nonce, []byte(tx.Data), tx.Funds}

	b, err := json.Marshal(txData)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(b)
	return hash[:], nil
}

func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.from = nil
	return nil
}

// From recovers the signer's account address.
func (tx *Transaction) From() ([20]byte, error) {
	if tx.from != nil {
		return *tx.from, nil
	}
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return [20]byte{}, errors.New("transaction: missing signature")
	}
	if tx.R.BitLen() > 256 || tx.S.BitLen() > 256 || tx.V.Uint64() < 27 || tx.V.Uint64() > 28 {
		return [20]byte{}, errors.New("transaction: malformed signature")
	}
	hash, err := tx.Hash()
	if err != nil {
		return [20]byte{}, err
	}
	sig := make([]byte, 65)
	copy(sig[32-len(tx.R.Bytes()):32], tx.R.Bytes())
	copy(sig[64-len(tx.S.Bytes()):64], tx.S.Bytes())
	sig[64] = byte(tx.V.Uint64() - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return [20]byte{}, err
	}
	var from [20]byte
	copy(from[:], crypto.PubkeyToAddress(*pubKey).Bytes())
	tx.from = &from
	return from, nil
}
