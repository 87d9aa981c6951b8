// Package fair 实现可证明公平的种子链
//
// 每次抽取对 "server_seed:client_seed:counter" 做SHA-256，取摘要前4字节
// 按大端解释后除以2^32，得到 [0,1) 区间的均匀值。公开服务端种子后，
// 任何第三方都可以逐位复现同一序列。
package fair

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"

	apperrors "github.com/wfunc/slot-math/internal/errors"
)

// ServerSeedBytes 服务端种子随机字节数
const ServerSeedBytes = 32

const twoPow32 = 4294967296.0

// State 回合状态
// 零值表示未设置种子的状态，任何抽取都会返回 ErrUnseededState。
// 一个 State 只能归属于一个会话，非并发安全。
type State struct {
	serverSeed string
	clientSeed string
	counter    uint64
	freeSpins  int
}

// NewState 设置种子并创建状态，计数器与免费次数归零
func NewState(serverSeed, clientSeed string) (*State, error) {
	s := &State{}
	if err := s.Reseed(serverSeed, clientSeed); err != nil {
		return nil, err
	}
	return s, nil
}

// Restore 从持久化数据恢复状态
func Restore(serverSeed, clientSeed string, counter uint64, freeSpins int) (*State, error) {
	if serverSeed == "" {
		return nil, apperrors.New(apperrors.ErrUnseededState, "服务端种子为空")
	}
	if freeSpins < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "免费次数不能为负数: %d", freeSpins)
	}
	return &State{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		counter:    counter,
		freeSpins:  freeSpins,
	}, nil
}

// Reseed 重新设置种子，计数器与免费次数归零
func (s *State) Reseed(serverSeed, clientSeed string) error {
	if serverSeed == "" {
		return apperrors.New(apperrors.ErrUnseededState, "服务端种子为空")
	}
	s.serverSeed = serverSeed
	s.clientSeed = clientSeed
	s.counter = 0
	s.freeSpins = 0
	return nil
}

// Reset 清空种子，回到未设置状态
func (s *State) Reset() {
	*s = State{}
}

// Seeded 是否已设置种子
func (s *State) Seeded() bool {
	return s != nil && s.serverSeed != ""
}

// DeriveUniform 抽取下一个均匀值，计数器加一
func (s *State) DeriveUniform() (float64, error) {
	if !s.Seeded() {
		return 0, apperrors.New(apperrors.ErrUnseededState)
	}
	r := Uniform(s.serverSeed, s.clientSeed, s.counter)
	s.counter++
	return r, nil
}

// Counter 已消耗的抽取次数
func (s *State) Counter() uint64 { return s.counter }

// FreeSpins 剩余免费次数
func (s *State) FreeSpins() int { return s.freeSpins }

// SetFreeSpins 设置剩余免费次数
func (s *State) SetFreeSpins(n int) {
	if n < 0 {
		n = 0
	}
	s.freeSpins = n
}

// ServerSeed 服务端种子（仅在会话结束后公开）
func (s *State) ServerSeed() string { return s.serverSeed }

// ClientSeed 客户端种子
func (s *State) ClientSeed() string { return s.clientSeed }

// Snapshot 可公开的状态快照
type Snapshot struct {
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Counter        uint64 `json:"counter"`
	FreeSpins      int    `json:"free_spins_remaining"`
}

// Snapshot 返回不含服务端种子明文的快照
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		ServerSeedHash: HashSeed(s.serverSeed),
		ClientSeed:     s.clientSeed,
		Counter:        s.counter,
		FreeSpins:      s.freeSpins,
	}
}

// Digest 计算种子三元组的SHA-256摘要
func Digest(serverSeed, clientSeed string, counter uint64) [sha256.Size]byte {
	var b strings.Builder
	b.Grow(len(serverSeed) + len(clientSeed) + 22)
	b.WriteString(serverSeed)
	b.WriteByte(':')
	b.WriteString(clientSeed)
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(counter, 10))
	return sha256.Sum256([]byte(b.String()))
}

// Uniform 种子三元组对应的均匀值（纯函数，供第三方校验）
func Uniform(serverSeed, clientSeed string, counter uint64) float64 {
	d := Digest(serverSeed, clientSeed, counter)
	return float64(binary.BigEndian.Uint32(d[:4])) / twoPow32
}

// GenerateServerSeed 生成新的服务端种子（十六进制）
func GenerateServerSeed() (string, error) {
	buf := make([]byte, ServerSeedBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrUnknown, "生成服务端种子失败")
	}
	return hex.EncodeToString(buf), nil
}

// HashSeed 服务端种子承诺值
func HashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// VerifyRound 校验公开的服务端种子与承诺值一致，并重算该计数器的均匀值
func VerifyRound(serverSeed, serverSeedHash, clientSeed string, counter uint64) (float64, error) {
	if serverSeed == "" {
		return 0, apperrors.New(apperrors.ErrUnseededState, "服务端种子为空")
	}
	if serverSeedHash != "" {
		got := HashSeed(serverSeed)
		if subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(serverSeedHash))) != 1 {
			return 0, apperrors.New(apperrors.ErrInvalidParam, "服务端种子与承诺值不匹配")
		}
	}
	return Uniform(serverSeed, clientSeed, counter), nil
}
