package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wfunc/slot-math/internal/config"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game/table"
	"github.com/wfunc/slot-math/internal/logger"
)

// IndexFile 索引文件名
const IndexFile = "_index.json"

// ModeEntry 索引中的模式条目
type ModeEntry struct {
	Name    string  `json:"name"`
	Cost    float64 `json:"cost"`
	Events  string  `json:"events"`
	Weights string  `json:"weights"`
}

// Index 数学包索引
type Index struct {
	Modes []ModeEntry `json:"modes"`
}

// Writer 数学包写入器
type Writer struct {
	dir       string
	game      string
	zstdLevel int
	log       *zap.Logger
}

// NewWriter 创建写入器
func NewWriter(cfg config.OutputConfig, game string) *Writer {
	return &Writer{
		dir:       cfg.Dir,
		game:      game,
		zstdLevel: cfg.ZstdLevel,
		log:       logger.GetModuleLogger("export"),
	}
}

// Dir 输出目录
func (w *Writer) Dir() string { return w.dir }

// WeightsFile 权重表文件名
func WeightsFile(mode string) string {
	return fmt.Sprintf("lookup_%s.csv", mode)
}

// EventsFile 事件文件名
func EventsFile(game, mode string) string {
	return fmt.Sprintf("%s_%s.jsonl.zst", game, mode)
}

// WriteMode 写出单个模式的权重表与事件文件
func (w *Writer) WriteMode(mode string, cost float64, t *table.Table) (ModeEntry, error) {
	entry := ModeEntry{
		Name:    mode,
		Cost:    cost,
		Events:  EventsFile(w.game, mode),
		Weights: WeightsFile(mode),
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return entry, apperrors.Wrapf(err, apperrors.ErrUnknown, "创建输出目录失败: %s", w.dir)
	}

	outcomes := t.Outcomes()
	if err := writeFile(filepath.Join(w.dir, entry.Weights), func(f *os.File) error {
		return WriteCSV(f, outcomes)
	}); err != nil {
		return entry, err
	}
	if err := writeFile(filepath.Join(w.dir, entry.Events), func(f *os.File) error {
		return WriteEvents(f, outcomes, w.zstdLevel)
	}); err != nil {
		return entry, err
	}

	w.log.Info("模式文件已写出",
		zap.String("mode", mode),
		zap.String("weights", entry.Weights),
		zap.String("events", entry.Events),
		zap.Int("rows", len(outcomes)),
	)
	return entry, nil
}

// WriteIndex 写出索引文件；文件已存在时保持不变并返回 false
func (w *Writer) WriteIndex(entries []ModeEntry) (bool, error) {
	path := filepath.Join(w.dir, IndexFile)
	if _, err := os.Stat(path); err == nil {
		w.log.Info("索引文件已存在，跳过", zap.String("path", path))
		return false, nil
	}

	data, err := json.MarshalIndent(Index{Modes: entries}, "", "  ")
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrUnknown, "序列化索引失败")
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return false, apperrors.Wrapf(err, apperrors.ErrUnknown, "创建输出目录失败: %s", w.dir)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, apperrors.Wrapf(err, apperrors.ErrUnknown, "写入索引失败: %s", path)
	}
	return true, nil
}

// ReadIndex 读取索引文件
func ReadIndex(dir string) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrNotFound, "读取索引失败")
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidTable, "解析索引失败")
	}
	return &idx, nil
}

// WriteYAML 以YAML格式写出报告
func WriteYAML(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "序列化报告失败")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperrors.Wrapf(err, apperrors.ErrUnknown, "创建目录失败: %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrUnknown, "写入报告失败: %s", path)
	}
	return nil
}

// writeFile 写入临时文件后原子重命名
func writeFile(path string, fn func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrUnknown, "创建文件失败: %s", tmp)
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apperrors.Wrapf(err, apperrors.ErrUnknown, "关闭文件失败: %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrUnknown, "重命名文件失败: %s", path)
	}
	return nil
}
