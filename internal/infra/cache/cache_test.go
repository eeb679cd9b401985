package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStore_ReadWritePage(t *testing.T) {
	s := New(t.TempDir(), 0, false)
	const raw = "https://javdb.com/v/AbCd12"

	if err := s.WritePage("javdb", raw, "https://javdb565.com/v/AbCd12", []byte("<html/>")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	pg, ok, err := s.ReadPage("javdb", raw)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok {
		t.Fatalf("期望命中缓存，但 ok=false")
	}
	if pg.HTML != "<html/>" || pg.PageURL != "https://javdb565.com/v/AbCd12" {
		t.Fatalf("内容不一致：%+v", pg)
	}

	path, err := s.PagePath("javdb", raw)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Base(path) != Key(raw)+".json" {
		t.Fatalf("文件名应为 xxhash 键：%q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("期望文件存在，但 Stat 失败：%v", err)
	}
}

func TestStore_MissAndExpiry(t *testing.T) {
	s := New(t.TempDir(), time.Hour, false)
	const raw = "https://javdb.com/v/x"

	if _, ok, err := s.ReadPage("javdb", raw); ok || err != nil {
		t.Fatalf("期望未命中：ok=%v err=%v", ok, err)
	}

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if err := s.WritePage("javdb", raw, raw, []byte("x")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	if _, ok, _ := s.ReadPage("javdb", raw); !ok {
		t.Fatalf("未过期时应命中")
	}
	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, ok, _ := s.ReadPage("javdb", raw); ok {
		t.Fatalf("过期后不应命中")
	}
}

func TestStore_CorruptEntry(t *testing.T) {
	s := New(t.TempDir(), 0, false)
	const raw = "https://javdb.com/v/x"
	path, _ := s.PagePath("javdb", raw)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if _, ok, err := s.ReadPage("javdb", raw); ok || err == nil || !strings.Contains(err.Error(), "缓存文件损坏") {
		t.Fatalf("期望损坏错误：ok=%v err=%v", ok, err)
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	s := New(t.TempDir(), 0, true)
	const raw = "https://javdb.com/v/x"

	err := s.WritePage("javdb", raw, raw, []byte("x"))
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}

	path, err := s.PagePath("javdb", raw)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("期望文件不存在，但 Stat err=%v", err)
	}
}

func TestStore_RejectsBadProvider(t *testing.T) {
	s := New(t.TempDir(), 0, false)
	if _, err := s.PagePath("../etc", "https://x"); err == nil {
		t.Fatalf("期望非法 provider 返回错误")
	}
	if _, err := s.PagePath("javdb", " "); err == nil {
		t.Fatalf("期望空 url 返回错误")
	}
}
