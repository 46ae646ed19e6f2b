package loader

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/habtrack/internal/pkg/config"
)

// ConfigurationError 族哨兵
var (
	ErrDataDirMissing = errors.New("原始数据目录不存在")
	ErrNoDataFiles    = errors.New("原始数据目录中没有读数文件")
)

// Row 一条原始天线读数（已解析、未注释）
type Row struct {
	AnimalID string
	Antenna  int
	Source   string // 读头板名，取自文件名首段
	Datetime time.Time
}

// Report 加载统计。坏行跳过计数，从不因单行失败中断整次加载。
type Report struct {
	Files         int
	Rows          int       // 有效行数（去重、过滤后）
	BadRows       int       // 无法解析而跳过的行数
	Duplicates    int       // (datetime, animal_id) 重复而丢弃的行数
	OutOfRange    int       // 落在实验时间范围之外的行数
	UnknownTags   int       // 不在动物词表内的行数
	GhostTags     []string  // 因读数过少被剔除的幽灵标签
	DerivedStart  time.Time // 配置未给时间范围时从数据推导的起点
	DerivedFinish time.Time // 同上，终点
}

// Loader 原始读数加载器
type Loader struct {
	cfg *config.Config
}

// New 创建加载器
func New(cfg *config.Config) *Loader {
	return &Loader{cfg: cfg}
}

// Load 读取并合并全部读数文件。
// 返回的行已按时间排序、去重；若启用清洗，幽灵标签的行已剔除并记录在 Report 中。
// 词表与时间范围的配置改写由调用方基于 Report 显式决定。
func (l *Loader) Load() ([]Row, *Report, error) {
	files, err := listDataFiles(l.cfg.Project.DataPath, l.cfg.Loader.FnamePrefix)
	if err != nil {
		return nil, nil, err
	}

	loc, err := l.cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	report := &Report{Files: len(files)}

	vocab := make(map[string]struct{}, len(l.cfg.Project.AnimalIDs))
	for _, id := range l.cfg.Project.AnimalIDs {
		vocab[id] = struct{}{}
	}

	var rows []Row
	for _, file := range files {
		parsed, bad, err := parseFile(file, loc)
		if err != nil {
			return nil, nil, err
		}
		if bad > 0 {
			slog.Warn("跳过无法解析的行", "file", filepath.Base(file), "count", bad)
		}
		report.BadRows += bad
		rows = append(rows, parsed...)
	}

	// 自定义布局：按读头板重映射天线号
	if l.cfg.Loader.CustomLayout {
		renameAntennas(rows, l.cfg.Topology.AntennaRename)
	}

	// 词表过滤：项目建立时约定的标签之外的读数不进入流水线
	if len(vocab) > 0 {
		kept := rows[:0]
		for _, row := range rows {
			if _, ok := vocab[row.AnimalID]; ok {
				kept = append(kept, row)
			} else {
				report.UnknownTags++
			}
		}
		rows = kept
	}

	// 幽灵标签清洗：读数过少的标签按射频噪声处理
	if l.cfg.Loader.SanitizeAnimalIDs {
		rows, report.GhostTags = dropGhostTags(rows, l.cfg.Loader.MinAntennaCrossings)
		if len(report.GhostTags) > 0 {
			slog.Info("剔除幽灵标签", "ids", report.GhostTags, "min_crossings", l.cfg.Loader.MinAntennaCrossings)
		} else {
			slog.Info("未检测到幽灵标签")
		}
	}

	// 时间排序 + (datetime, animal_id) 去重，保留先出现的行
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Datetime.Before(rows[j].Datetime)
	})
	rows, report.Duplicates = dedupe(rows)

	// 实验时间范围：配置给定则裁剪，否则从数据推导并交由调用方回写配置
	if l.cfg.Timeline() != nil {
		start, finish, err := l.cfg.TimelineBounds()
		if err != nil {
			return nil, nil, err
		}
		kept := rows[:0]
		for _, row := range rows {
			if row.Datetime.Before(start) || row.Datetime.After(finish) {
				report.OutOfRange++
				continue
			}
			kept = append(kept, row)
		}
		rows = kept
	} else if len(rows) > 0 {
		report.DerivedStart = rows[0].Datetime
		report.DerivedFinish = rows[len(rows)-1].Datetime
		slog.Info("实验起止时间由数据推导",
			"start", report.DerivedStart.Format("2006-01-02 15:04:05"),
			"finish", report.DerivedFinish.Format("2006-01-02 15:04:05"))
	}

	report.Rows = len(rows)
	slog.Info("原始数据加载完成",
		"files", report.Files, "rows", report.Rows,
		"bad_rows", report.BadRows, "duplicates", report.Duplicates)

	return rows, report, nil
}

// listDataFiles 列出读数文件：优先前缀匹配，兼容按日期命名的旧格式
func listDataFiles(dataPath, prefix string) ([]string, error) {
	info, err := os.Stat(dataPath)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDataDirMissing, dataPath)
	}

	files, err := filepath.Glob(filepath.Join(dataPath, prefix+"*.txt"))
	if err != nil {
		return nil, fmt.Errorf("扫描数据目录失败: %w", err)
	}
	if len(files) == 0 {
		files, err = filepath.Glob(filepath.Join(dataPath, "20*.txt"))
		if err != nil {
			return nil, fmt.Errorf("扫描数据目录失败: %w", err)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDataFiles, dataPath)
	}

	sort.Strings(files)
	return files, nil
}

// sourceFromFilename 文件名首段即读头板名：COM3_2023.txt → COM3
func sourceFromFilename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(base, "_"); i > 0 {
		return base[:i]
	}
	return base
}

// 行格式：index \t date \t time \t antenna \t time_under \t animal_id
var datetimeLayouts = []string{
	"20060102 15:04:05.999",
	"2006.01.02 15:04:05.999",
	"2006-01-02 15:04:05.999",
}

// parseFile 解析单个读数文件，坏行计数跳过
func parseFile(path string, loc *time.Location) ([]Row, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer f.Close()

	source := sourceFromFilename(path)

	var rows []Row
	bad := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}

		row, ok := parseLine(line, source, loc)
		if !ok {
			bad++
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, bad, fmt.Errorf("读取数据文件失败: %w", err)
	}

	return rows, bad, nil
}

// parseLine 解析单行。index 与 time_under 两列读后即弃。
func parseLine(line, source string, loc *time.Location) (Row, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 6 {
		return Row{}, false
	}

	antenna, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil {
		return Row{}, false
	}

	animalID := strings.TrimSpace(fields[5])
	if animalID == "" {
		return Row{}, false
	}

	stamp := strings.TrimSpace(fields[1]) + " " + strings.TrimSpace(fields[2])
	var datetime time.Time
	parsed := false
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, stamp, loc); err == nil {
			datetime = t
			parsed = true
			break
		}
	}
	if !parsed {
		return Row{}, false
	}

	return Row{
		AnimalID: animalID,
		Antenna:  antenna,
		Source:   source,
		Datetime: datetime,
	}, true
}

// renameAntennas 按读头板把板内天线号折叠到全局编号
func renameAntennas(rows []Row, scheme map[string]map[string]int) {
	if len(scheme) == 0 {
		return
	}
	for i := range rows {
		boardMap, ok := scheme[rows[i].Source]
		if !ok {
			continue
		}
		if renamed, ok := boardMap[strconv.Itoa(rows[i].Antenna)]; ok {
			rows[i].Antenna = renamed
		}
	}
}

// dropGhostTags 剔除总读数低于阈值的标签
func dropGhostTags(rows []Row, minCrossings int) ([]Row, []string) {
	counts := make(map[string]int)
	for _, row := range rows {
		counts[row.AnimalID]++
	}

	ghosts := make(map[string]struct{})
	for id, n := range counts {
		if n < minCrossings {
			ghosts[id] = struct{}{}
		}
	}
	if len(ghosts) == 0 {
		return rows, nil
	}

	kept := rows[:0]
	for _, row := range rows {
		if _, ok := ghosts[row.AnimalID]; !ok {
			kept = append(kept, row)
		}
	}

	ids := make([]string, 0, len(ghosts))
	for id := range ghosts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return kept, ids
}

// dedupe 丢弃 (datetime, animal_id) 重复行，输入须已按时间排序
func dedupe(rows []Row) ([]Row, int) {
	seen := make(map[string]struct{}, len(rows))
	kept := rows[:0]
	dropped := 0
	for _, row := range rows {
		key := strconv.FormatInt(row.Datetime.UnixMicro(), 10) + "|" + row.AnimalID
		if _, ok := seen[key]; ok {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	return kept, dropped
}
