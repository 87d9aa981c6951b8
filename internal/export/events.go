package export

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/klauspost/compress/zstd"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game/table"
)

// DefaultZstdLevel 默认压缩级别
const DefaultZstdLevel = 10

// EventRecord 事件文件中的一行
type EventRecord struct {
	ID               int        `json:"id"`
	Events           []struct{} `json:"events"`
	PayoutMultiplier int64      `json:"payoutMultiplier"`
}

// WriteEvents 以 zstd 压缩的 JSON Lines 写出回合文档
func WriteEvents(out io.Writer, outcomes []table.Outcome, level int) error {
	if level <= 0 {
		level = DefaultZstdLevel
	}
	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "创建zstd编码器失败")
	}

	je := json.NewEncoder(enc)
	record := EventRecord{Events: []struct{}{{}}}
	for _, o := range outcomes {
		record.ID = o.ID
		record.PayoutMultiplier = o.Multiplier
		// Encode 自动追加换行
		if err := je.Encode(&record); err != nil {
			enc.Close()
			return apperrors.Wrap(err, apperrors.ErrUnknown, "写入事件失败")
		}
	}
	if err := enc.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "关闭zstd编码器失败")
	}
	return nil
}

// ReadEvents 读取 zstd 压缩的事件文件
func ReadEvents(in io.Reader) ([]EventRecord, error) {
	dec, err := zstd.NewReader(in)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidTable, "创建zstd解码器失败")
	}
	defer dec.Close()

	var records []EventRecord
	scanner := bufio.NewScanner(dec)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec EventRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrInvalidTable, "第%d条事件解析失败", len(records)+1)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidTable, "读取事件失败")
	}
	return records, nil
}
