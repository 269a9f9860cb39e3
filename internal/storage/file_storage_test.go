package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSaveAndLoadJSON(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}

	type doc struct {
		Title string `json:"title"`
	}
	if err := fs.SaveJSONFile("scenarios/a", "scenario.json", doc{Title: "最初"}); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	var got doc
	if err := fs.LoadJSONFile("scenarios/a", "scenario.json", &got); err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if got.Title != "最初" {
		t.Fatalf("期望 最初，实际 %s", got.Title)
	}

	// 覆盖写入后不应读到旧缓存
	if err := fs.SaveJSONFile("scenarios/a", "scenario.json", doc{Title: "更新"}); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	if err := fs.LoadJSONFile("scenarios/a", "scenario.json", &got); err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if got.Title != "更新" {
		t.Fatalf("缓存未失效: %s", got.Title)
	}
	if _, err := os.Stat(filepath.Join(fs.BaseDir, "scenarios/a/scenario.json.tmp")); !os.IsNotExist(err) {
		t.Fatal("临时文件未清理")
	}
}

func TestLoadMissingFile(t *testing.T) {
	fs, _ := NewFileStorage(t.TempDir())
	_, err := fs.LoadFile("scenarios/none", "scenario.json")
	if !errors.Is(err, ErrNotExist) {
		t.Fatalf("期望 ErrNotExist，实际 %v", err)
	}
	if fs.FileExists("scenarios/none", "scenario.json") {
		t.Fatal("文件不应存在")
	}
}

func TestRejectsEscapingPaths(t *testing.T) {
	fs, _ := NewFileStorage(t.TempDir())
	if err := fs.SaveFile("../outside", "x.txt", []byte("x")); err == nil {
		t.Fatal("越界路径应被拒绝")
	}
	if err := fs.DeleteDir("."); err == nil {
		t.Fatal("不能删除根目录")
	}
}

func TestDeleteDirAndList(t *testing.T) {
	fs, _ := NewFileStorage(t.TempDir())
	for _, id := range []string{"a", "b"} {
		if err := fs.SaveFile("scenarios/"+id, "scenario.json", []byte("{}")); err != nil {
			t.Fatalf("保存失败: %v", err)
		}
	}
	if _, err := fs.LoadFile("scenarios/a", "scenario.json"); err != nil {
		t.Fatalf("读取失败: %v", err)
	}

	if err := fs.DeleteDir("scenarios/a"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if err := fs.DeleteDir("scenarios/a"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("重复删除期望 ErrNotExist，实际 %v", err)
	}
	if fs.cache.len() != 0 {
		t.Fatalf("删除后缓存应为空，实际 %d", fs.cache.len())
	}

	dirs, err := fs.ListDirs("scenarios")
	if err != nil || len(dirs) != 1 || dirs[0] != "b" {
		t.Fatalf("目录列表错误: %v %v", dirs, err)
	}
	if dirs, err := fs.ListDirs("missing"); err != nil || dirs != nil {
		t.Fatalf("不存在的目录应返回空列表: %v %v", dirs, err)
	}
}

func TestSaveStreamLimit(t *testing.T) {
	fs, _ := NewFileStorage(t.TempDir())
	n, err := fs.SaveStream("uploads", "a.png", strings.NewReader("12345"), 5)
	if err != nil || n != 5 {
		t.Fatalf("写入失败: %d %v", n, err)
	}
	if _, err := fs.SaveStream("uploads", "b.png", strings.NewReader("123456"), 5); err == nil {
		t.Fatal("超限内容应被拒绝")
	}
	if fs.FileExists("uploads", "b.png") {
		t.Fatal("超限内容不应写入")
	}
}

func TestConcurrentWrites(t *testing.T) {
	fs, _ := NewFileStorage(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fs.SaveFile("shared", "f.txt", []byte("content")); err != nil {
				t.Errorf("并发写入失败: %v", err)
			}
		}()
	}
	wg.Wait()
	data, err := fs.LoadFile("shared", "f.txt")
	if err != nil || string(data) != "content" {
		t.Fatalf("内容错误: %q %v", data, err)
	}
}

func TestCacheEviction(t *testing.T) {
	c := newContentCache(2, time.Minute)
	mod := time.Now()
	c.put("a", []byte("a"), mod)
	time.Sleep(time.Millisecond)
	c.put("b", []byte("b"), mod)
	time.Sleep(time.Millisecond)
	c.get("a", mod)
	c.put("c", []byte("c"), mod)

	if _, ok := c.get("b", mod); ok {
		t.Fatal("最久未读取的条目应被淘汰")
	}
	if _, ok := c.get("a", mod); !ok {
		t.Fatal("最近读取的条目应保留")
	}
	if _, ok := c.get("a", mod.Add(time.Second)); ok {
		t.Fatal("修改时间变化后不应命中")
	}
}
