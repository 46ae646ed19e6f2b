package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yuqie6/habtrack/internal/pkg/config"
)

func testConfig(dataPath string) *config.Config {
	return &config.Config{
		Project: config.ProjectConfig{
			DataPath:  dataPath,
			Timezone:  "UTC",
			AnimalIDs: []string{"mouse_1", "mouse_2"},
		},
		Loader: config.LoaderConfig{
			FnamePrefix:         "COM",
			SanitizeAnimalIDs:   false,
			MinAntennaCrossings: 100,
		},
	}
}

func writeDataFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("写测试数据失败: %v", err)
	}
}

func TestLoadParsesAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "COM3_20230117.txt",
		"2\t20230117\t12:00:10.500\t2\t150\tmouse_1\n"+
			"1\t20230117\t12:00:05.123\t1\t300\tmouse_1\n")
	writeDataFile(t, dir, "COM4_20230117.txt",
		"1\t20230117\t12:00:07.000\t3\t100\tmouse_2\n")

	rows, report, err := New(testConfig(dir)).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if report.Files != 2 || report.Rows != 3 || report.BadRows != 0 {
		t.Fatalf("report=%+v", report)
	}

	// 跨文件合并后按时间排序
	if rows[0].AnimalID != "mouse_1" || rows[1].AnimalID != "mouse_2" || rows[2].AnimalID != "mouse_1" {
		t.Fatalf("排序错误: %+v", rows)
	}
	if rows[0].Source != "COM3" || rows[1].Source != "COM4" {
		t.Errorf("读头板名: %q %q", rows[0].Source, rows[1].Source)
	}
	if rows[0].Antenna != 1 {
		t.Errorf("antenna=%d", rows[0].Antenna)
	}
}

func TestLoadSkipsBadRowsAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "COM3_x.txt",
		"1\t20230117\t12:00:05.000\t1\t300\tmouse_1\n"+
			"garbage line\n"+
			"2\t20230117\tnot-a-time\t1\t300\tmouse_1\n"+
			"3\t20230117\t12:00:05.000\t1\t300\tmouse_1\n"+ // (datetime, animal) 重复
			"4\t20230117\t12:00:09.000\t1\t300\tintruder\n") // 词表之外

	rows, report, err := New(testConfig(dir)).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if report.BadRows != 2 {
		t.Errorf("BadRows=%d, want 2", report.BadRows)
	}
	if report.Duplicates != 1 {
		t.Errorf("Duplicates=%d, want 1", report.Duplicates)
	}
	if report.UnknownTags != 1 {
		t.Errorf("UnknownTags=%d, want 1", report.UnknownTags)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d, want 1", len(rows))
	}
}

func TestLoadDropsGhostTags(t *testing.T) {
	dir := t.TempDir()
	content := ""
	for i := 0; i < 5; i++ {
		content += "1\t20230117\t12:00:0" + string(rune('0'+i)) + ".000\t1\t300\tmouse_1\n"
	}
	content += "9\t20230117\t12:00:09.000\t2\t300\tmouse_2\n"
	writeDataFile(t, dir, "COM3_x.txt", content)

	cfg := testConfig(dir)
	cfg.Loader.SanitizeAnimalIDs = true
	cfg.Loader.MinAntennaCrossings = 3

	rows, report, err := New(cfg).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(report.GhostTags) != 1 || report.GhostTags[0] != "mouse_2" {
		t.Fatalf("GhostTags=%v", report.GhostTags)
	}
	for _, row := range rows {
		if row.AnimalID == "mouse_2" {
			t.Fatal("幽灵标签的行仍在输出中")
		}
	}
}

func TestLoadDerivesTimeline(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "COM3_x.txt",
		"1\t20230117\t10:00:00.000\t1\t300\tmouse_1\n"+
			"2\t20230118\t20:00:00.000\t1\t300\tmouse_1\n")

	_, report, err := New(testConfig(dir)).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if report.DerivedStart.IsZero() || report.DerivedFinish.IsZero() {
		t.Fatal("未从数据推导实验起止时间")
	}
	if !report.DerivedStart.Before(report.DerivedFinish) {
		t.Fatalf("start=%v finish=%v", report.DerivedStart, report.DerivedFinish)
	}
}

func TestLoadMissingDir(t *testing.T) {
	_, _, err := New(testConfig("/no/such/dir")).Load()
	if !errors.Is(err, ErrDataDirMissing) {
		t.Fatalf("期望 ErrDataDirMissing, got %v", err)
	}
}

func TestLoadEmptyDir(t *testing.T) {
	_, _, err := New(testConfig(t.TempDir())).Load()
	if !errors.Is(err, ErrNoDataFiles) {
		t.Fatalf("期望 ErrNoDataFiles, got %v", err)
	}
}

func TestSourceFromFilename(t *testing.T) {
	cases := map[string]string{
		"/data/COM3_20230117.txt": "COM3",
		"/data/COM12.txt":         "COM12",
		"/data/20230117_board.txt": "20230117",
	}
	for path, want := range cases {
		if got := sourceFromFilename(path); got != want {
			t.Errorf("sourceFromFilename(%q)=%q, want %q", path, got, want)
		}
	}
}
