// Package rng 提供回合解析与模拟所用的随机数源
//
// 这里的随机数源与可证明公平的种子链相互独立，仅用于奖励倍率挑选
// 和离线模拟抽样，不参与输赢判定。
package rng

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/big"

	"golang.org/x/crypto/chacha20"
)

// Generator 随机数生成器接口
type Generator interface {
	// Next 生成 [0,1) 区间的随机数
	Next() float64

	// NextInt 生成 [min,max) 区间的随机整数
	NextInt(min, max int) int

	// Int63n 生成 [0,n) 区间的随机整数
	Int63n(n int64) int64
}

const float53 = 1.0 / (1 << 53)

// CryptoGenerator 加密安全的随机数生成器
type CryptoGenerator struct{}

// NewCryptoGenerator 创建加密随机数生成器
func NewCryptoGenerator() *CryptoGenerator {
	return &CryptoGenerator{}
}

// Next 生成下一个随机数 (0-1)
func (g *CryptoGenerator) Next() float64 {
	return float64(g.Int63n(1<<53)) * float53
}

// NextInt 生成指定范围内的随机整数
func (g *CryptoGenerator) NextInt(min, max int) int {
	if min >= max {
		return min
	}
	return min + int(g.Int63n(int64(max-min)))
}

// Int63n 生成 [0,n) 区间的随机整数
func (g *CryptoGenerator) Int63n(n int64) int64 {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		panic("rng: 系统随机源不可用: " + err.Error())
	}
	return v.Int64()
}

// ChaChaGenerator 基于ChaCha20密钥流的确定性生成器
// 相同种子产生相同序列，非并发安全
type ChaChaGenerator struct {
	cipher *chacha20.Cipher
	buf    [512]byte
	pos    int
}

// NewChaChaGenerator 由任意字节种子创建确定性生成器
func NewChaChaGenerator(seed []byte) *ChaChaGenerator {
	key := sha256.Sum256(seed)
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce)
	if err != nil {
		// 密钥与nonce长度固定，不会出错
		panic("rng: " + err.Error())
	}
	g := &ChaChaGenerator{cipher: c}
	g.refill()
	return g
}

// NewChaChaGeneratorFromString 由字符串种子创建确定性生成器
func NewChaChaGeneratorFromString(seed string) *ChaChaGenerator {
	return NewChaChaGenerator([]byte(seed))
}

func (g *ChaChaGenerator) refill() {
	for i := range g.buf {
		g.buf[i] = 0
	}
	g.cipher.XORKeyStream(g.buf[:], g.buf[:])
	g.pos = 0
}

// Uint64 返回下一个64位随机数
func (g *ChaChaGenerator) Uint64() uint64 {
	if g.pos+8 > len(g.buf) {
		g.refill()
	}
	v := binary.LittleEndian.Uint64(g.buf[g.pos:])
	g.pos += 8
	return v
}

// Next 生成 [0,1) 区间的随机数
func (g *ChaChaGenerator) Next() float64 {
	return float64(g.Uint64()>>11) * float53
}

// NextInt 生成 [min,max) 区间的随机整数
func (g *ChaChaGenerator) NextInt(min, max int) int {
	if min >= max {
		return min
	}
	return min + int(g.Int63n(int64(max-min)))
}

// Int63n 生成 [0,n) 区间的随机整数（拒绝采样，无取模偏差）
func (g *ChaChaGenerator) Int63n(n int64) int64 {
	if n <= 1 {
		return 0
	}
	un := uint64(n)
	limit := math.MaxUint64 - math.MaxUint64%un
	for {
		v := g.Uint64()
		if v < limit {
			return int64(v % un)
		}
	}
}
