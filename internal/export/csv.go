// Package export 写出与读取数学包文件
//
// 数学包包含：lookup_<mode>.csv（id,weight,multiplier，无表头），
// <game>_<mode>.jsonl.zst（每行一个回合文档）以及 _index.json。
package export

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game/table"
)

// WriteCSV 写出权重表，整数按十进制原样输出
func WriteCSV(out io.Writer, outcomes []table.Outcome) error {
	bw := bufio.NewWriter(out)
	w := csv.NewWriter(bw)
	record := make([]string, 3)
	for _, o := range outcomes {
		record[0] = strconv.Itoa(o.ID)
		record[1] = strconv.FormatInt(o.Weight, 10)
		record[2] = strconv.FormatInt(o.Multiplier, 10)
		if err := w.Write(record); err != nil {
			return apperrors.Wrap(err, apperrors.ErrUnknown, "写入CSV失败")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "写入CSV失败")
	}
	return bw.Flush()
}

// ReadCSV 读取权重表
func ReadCSV(in io.Reader) ([]table.Outcome, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	var outcomes []table.Outcome
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrInvalidTable, "第%d行解析失败", line)
		}
		if len(record) < 3 {
			continue
		}

		id, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidTable, "第%d行编号无效: %q", line, record[0])
		}
		weight, err := strconv.ParseInt(record[1], 10, 64)
		if err != nil || weight < 0 {
			return nil, apperrors.Newf(apperrors.ErrInvalidTable, "第%d行权重无效: %q", line, record[1])
		}
		multiplier, err := strconv.ParseInt(record[2], 10, 64)
		if err != nil || multiplier < 0 {
			return nil, apperrors.Newf(apperrors.ErrInvalidTable, "第%d行倍率无效: %q", line, record[2])
		}
		outcomes = append(outcomes, table.Outcome{ID: id, Weight: weight, Multiplier: multiplier})
	}
	return outcomes, nil
}

// ReadCSVFile 读取权重表文件，并检查权重总和
// totalUnits 为0时不检查
func ReadCSVFile(path string, totalUnits int64) ([]table.Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrNotFound, "打开权重表失败: %s", path)
	}
	defer f.Close()

	outcomes, err := ReadCSV(f)
	if err != nil {
		return nil, err
	}
	if totalUnits > 0 {
		var sum int64
		for _, o := range outcomes {
			sum += o.Weight
		}
		if sum != totalUnits {
			return nil, apperrors.Newf(apperrors.ErrInvalidTable,
				"%s 权重总和 %d 与期望 %d 不符", path, sum, totalUnits)
		}
	}
	return outcomes, nil
}
