package vault

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	xerrors "BondingBot/internal/errors"
	"BondingBot/internal/session"
)

var (
	// ErrInvalidCredential 表示私钥或助记词格式非法，或解密校验失败。
	ErrInvalidCredential = xerrors.New(xerrors.CodeInvalidCredential, "")
	// ErrNoCredential 表示钱包为空或缺少已存储的私钥。
	ErrNoCredential = xerrors.New(xerrors.CodeNoCredential, "")
)

// 私钥明文必须恰好是 64 个十六进制字符（32 字节）。
var privateKeyHex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// BIP44 以太坊账户路径 m/44'/60'/0'/0/{index} 的常量部分。
const (
	purposeBIP44  = 44
	coinTypeEther = 60
)

// Vault 负责钱包密钥的生成、导入、加密与按需解密。加密密钥来自运维
// 配置，与 Bot Token 相互独立，也绝不会由用户输入派生。
type Vault struct {
	secret []byte
}

// New 创建 Vault。
func New(encryptionSecret string) (*Vault, error) {
	if strings.TrimSpace(encryptionSecret) == "" {
		return nil, errors.New("钱包加密密钥不能为空")
	}
	return &Vault{secret: []byte(encryptionSecret)}, nil
}

// Generate 生成全新的钱包：随机助记词、路径 0 派生的私钥。返回值中的
// 私钥与助记词均已加密，明文不会越过函数边界。
func (v *Vault) Generate() (*session.Wallet, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "生成随机熵失败")
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "生成助记词失败")
	}
	return v.walletFromMnemonic(mnemonic, 0)
}

// Import 导入已有钱包。含空格的输入按助记词处理并在指定路径下派生；
// 不含空格的输入按裸私钥处理。
func (v *Vault) Import(secret string, derivationIndex int) (*session.Wallet, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, xerrors.New(xerrors.CodeInvalidCredential, "私钥或助记词不能为空")
	}
	if strings.Contains(secret, " ") {
		mnemonic := strings.Join(strings.Fields(secret), " ")
		if !bip39.IsMnemonicValid(mnemonic) {
			return nil, xerrors.New(xerrors.CodeInvalidCredential, "助记词未通过词表或校验和检查")
		}
		return v.walletFromMnemonic(mnemonic, derivationIndex)
	}

	keyHex := strings.TrimPrefix(secret, "0x")
	if !privateKeyHex.MatchString(keyHex) {
		return nil, xerrors.New(xerrors.CodeInvalidCredential, "私钥必须是 32 字节的十六进制串")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidCredential, err, "解析私钥失败")
	}
	return v.sealWallet(key, "")
}

// SigningKey 解密钱包私钥并返回临时签名密钥。调用方在单次交易构建、
// 提交完成后即应丢弃该密钥。
func (v *Vault) SigningKey(wallet *session.Wallet) (*ecdsa.PrivateKey, error) {
	if wallet == nil || wallet.EncryptedPrivateKey == "" {
		return nil, ErrNoCredential
	}
	plaintext, err := open(v.secret, wallet.EncryptedPrivateKey)
	if err != nil {
		// 密钥不匹配与密文损坏一律按格式错误上报，不做区分。
		return nil, xerrors.Wrap(xerrors.CodeInvalidCredential, err, "解密钱包私钥失败")
	}

	keyHex := strings.TrimPrefix(string(plaintext), "0x")
	if !privateKeyHex.MatchString(keyHex) {
		return nil, xerrors.New(xerrors.CodeInvalidCredential, "解密结果不是合法的私钥")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidCredential, err, "解析解密后的私钥失败")
	}
	return key, nil
}

// RevealMnemonic 解密钱包助记词，仅用于用户主动请求备份的场景。
func (v *Vault) RevealMnemonic(wallet *session.Wallet) (string, error) {
	if wallet == nil || wallet.EncryptedMnemonic == "" {
		return "", ErrNoCredential
	}
	plaintext, err := open(v.secret, wallet.EncryptedMnemonic)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidCredential, err, "解密助记词失败")
	}
	return string(plaintext), nil
}

func (v *Vault) walletFromMnemonic(mnemonic string, index int) (*session.Wallet, error) {
	if index < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "派生序号不能为负数")
	}
	key, err := deriveKey(mnemonic, uint32(index))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidCredential, err, "派生账户失败")
	}
	return v.sealWallet(key, mnemonic)
}

// deriveKey 按 m/44'/60'/0'/0/{index} 派生以太坊账户私钥。
func deriveKey(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	path := []uint32{
		hdkeychain.HardenedKeyStart + purposeBIP44,
		hdkeychain.HardenedKeyStart + coinTypeEther,
		hdkeychain.HardenedKeyStart,
		0,
		index,
	}
	node := master
	for _, segment := range path {
		node, err = node.Derive(segment)
		if err != nil {
			return nil, err
		}
	}
	privKey, err := node.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return privKey.ToECDSA(), nil
}

func (v *Vault) sealWallet(key *ecdsa.PrivateKey, mnemonic string) (*session.Wallet, error) {
	keyHex := hex.EncodeToString(crypto.FromECDSA(key))
	encryptedKey, err := seal(v.secret, []byte(keyHex))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "加密私钥失败")
	}

	wallet := &session.Wallet{
		Address:             crypto.PubkeyToAddress(key.PublicKey).Hex(),
		EncryptedPrivateKey: encryptedKey,
	}
	if mnemonic != "" {
		encryptedMnemonic, err := seal(v.secret, []byte(mnemonic))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "加密助记词失败")
		}
		wallet.EncryptedMnemonic = encryptedMnemonic
	}
	return wallet, nil
}
