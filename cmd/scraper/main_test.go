package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-scrape-estates/config"
	"github.com/aluiziolira/go-scrape-estates/pipeline"
)

func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeLegacyWorkbook(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestCheckpointImport(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	writeLegacyWorkbook(t, filepath.Join(dir, cfg.LegacyErrorFile), [][]string{
		{"标题", "资产名称"},
		{"第一条", "【一拍】深圳市A小区"},
		{"第二条", "【二拍】深圳市B小区3栋"},
	})

	out, err := execute(t, cfg, "checkpoint", "import", "--output-dir", dir, "--page", "4")
	require.NoError(t, err)
	require.Contains(t, out, "深圳市B小区3栋")

	cp, err := pipeline.NewCheckpointStore(filepath.Join(dir, cfg.CheckpointFile)).Load()
	require.NoError(t, err)
	require.Equal(t, "深圳市B小区3栋", cp.LastKey)
	require.Equal(t, 4, cp.Page)
	require.Equal(t, "gd", cp.Province)
	require.Equal(t, pipeline.CheckpointVersion, cp.Version)

	out, err = execute(t, config.DefaultConfig(), "checkpoint", "show", "--output-dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "last key:  深圳市B小区3栋")

	_, err = execute(t, config.DefaultConfig(), "checkpoint", "clear", "--output-dir", dir)
	require.NoError(t, err)
	out, err = execute(t, config.DefaultConfig(), "checkpoint", "show", "--output-dir", dir)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "no checkpoint"), out)
}

func TestCheckpointImportWithoutLegacyFile(t *testing.T) {
	_, err := execute(t, config.DefaultConfig(), "checkpoint", "import", "--output-dir", t.TempDir())
	require.ErrorContains(t, err, "nothing to import")
}

func TestAuctionRejectsInvalidLocation(t *testing.T) {
	// gd has no hz; rejected before any browser is started.
	_, err := execute(t, config.DefaultConfig(), "auction", "--city", "hz")
	require.ErrorContains(t, err, "invalid configuration")
}

func TestDealsRejectsUnknownDistrict(t *testing.T) {
	_, err := execute(t, config.DefaultConfig(), "deals", "不存在区")
	require.ErrorContains(t, err, "不存在区")
}

func TestLocations(t *testing.T) {
	out, err := execute(t, config.DefaultConfig(), "locations")
	require.NoError(t, err)
	require.Contains(t, out, "gd 广东: sz 深圳")
	require.Contains(t, out, "bj 北京: (municipality)")
	require.Contains(t, out, "盐田区: 梅沙 沙头角 盐田港")
}
