package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Polymarket's CTF exchange on Polygon mainnet.
const DefaultExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6bd8B8982E"

const clobAuthMessage = "This message attests that I control the given wallet"

var (
	authDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)
	exchangeDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	clobAuthTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"),
	)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// Order side and signature type encodings.
const (
	SideBuy  uint8 = 0
	SideSell uint8 = 1

	SignatureEOA uint8 = 0
)

// OrderPayload is the signed part of a CLOB order.
type OrderPayload struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
}

// Signer signs Polymarket auth messages and orders with a secp256k1 key.
type Signer struct {
	key         *ecdsa.PrivateKey
	address     common.Address
	authDomain  []byte
	orderDomain []byte
}

// NewSigner creates a Signer for chainID and the given exchange contract.
func NewSigner(privateKeyHex string, chainID int64, exchange string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if !common.IsHexAddress(exchange) {
		return nil, fmt.Errorf("crypto/signer: invalid exchange address %q", exchange)
	}
	chain := big.NewInt(chainID)

	return &Signer{
		key:     pk,
		address: ethcrypto.PubkeyToAddress(pk.PublicKey),
		authDomain: ethcrypto.Keccak256(
			authDomainTypeHash,
			ethcrypto.Keccak256([]byte("ClobAuthDomain")),
			ethcrypto.Keccak256([]byte("1")),
			word(chain),
		),
		orderDomain: ethcrypto.Keccak256(
			exchangeDomainTypeHash,
			ethcrypto.Keccak256([]byte("Polymarket CTF Exchange")),
			ethcrypto.Keccak256([]byte("1")),
			word(chain),
			common.LeftPadBytes(common.HexToAddress(exchange).Bytes(), 32),
		),
	}, nil
}

// Address returns the signing wallet.
func (s *Signer) Address() common.Address { return s.address }

// SignAuth signs the ClobAuth message used for API key derivation.
func (s *Signer) SignAuth(timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(
		clobAuthTypeHash,
		common.LeftPadBytes(s.address.Bytes(), 32),
		ethcrypto.Keccak256([]byte(fmt.Sprintf("%d", timestamp))),
		word(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(clobAuthMessage)),
	)
	return s.sign(s.authDomain, structHash)
}

// SignOrder signs an order under the exchange domain.
func (s *Signer) SignOrder(o OrderPayload) (string, error) {
	for name, v := range map[string]*big.Int{
		"salt": o.Salt, "tokenId": o.TokenID, "makerAmount": o.MakerAmount,
		"takerAmount": o.TakerAmount, "expiration": o.Expiration,
		"nonce": o.Nonce, "feeRateBps": o.FeeRateBps,
	} {
		if v == nil || v.Sign() < 0 {
			return "", fmt.Errorf("crypto/signer: invalid %s", name)
		}
	}
	structHash := ethcrypto.Keccak256(
		orderTypeHash,
		word(o.Salt),
		common.LeftPadBytes(o.Maker.Bytes(), 32),
		common.LeftPadBytes(o.Signer.Bytes(), 32),
		common.LeftPadBytes(o.Taker.Bytes(), 32),
		word(o.TokenID),
		word(o.MakerAmount),
		word(o.TakerAmount),
		word(o.Expiration),
		word(o.Nonce),
		word(o.FeeRateBps),
		word(big.NewInt(int64(o.Side))),
		word(big.NewInt(int64(o.SignatureType))),
	)
	return s.sign(s.orderDomain, structHash)
}

// sign returns the 65-byte r||s||v signature with v in {27, 28}.
func (s *Signer) sign(domainSep, structHash []byte) (string, error) {
	digest := ethcrypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: sign: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

func word(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}
