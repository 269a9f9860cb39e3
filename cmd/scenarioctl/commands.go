package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-resty/resty/v2"
	"gopkg.in/yaml.v3"

	"github.com/Corphon/NovelGenPage/internal/scenario"
	"github.com/Corphon/NovelGenPage/internal/services"
	"github.com/Corphon/NovelGenPage/internal/utils"
)

// readInput 读取文件，路径为空或 "-" 时读取标准输入
func readInput(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (g *Globals) conversion() *services.ConversionService {
	return services.NewConversionService(services.EngineFor(g.appConfig()), utils.NewConversionMetricsWith(utils.NewMetricsCollector()))
}

// BlocksCmd 输出区块
type BlocksCmd struct {
	Path   string `arg:"" optional:"" help:"Scenario file (default: stdin)"`
	Format string `short:"f" help:"Output format" enum:"json,yaml" default:"json"`
}

func (c *BlocksCmd) Run(g *Globals) error {
	src, err := readInput(c.Path)
	if err != nil {
		return err
	}
	blocks := g.conversion().Blocks(src)
	if blocks == nil {
		blocks = []scenario.Block{}
	}

	if c.Format == "yaml" {
		enc := yaml.NewEncoder(g.out())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(blocks)
	}
	return writeJSON(g.out(), blocks)
}

// DeltaCmd 输出文档模型
type DeltaCmd struct {
	Path string `arg:"" optional:"" help:"Scenario file (default: stdin)"`
}

func (c *DeltaCmd) Run(g *Globals) error {
	src, err := readInput(c.Path)
	if err != nil {
		return err
	}
	return writeJSON(g.out(), g.conversion().Delta(src))
}

// SourceCmd 从文档模型 JSON 还原源文本
type SourceCmd struct {
	Path string `arg:"" optional:"" help:"Delta JSON file with an ops array (default: stdin)"`
}

func (c *SourceCmd) Run(g *Globals) error {
	data, err := readInput(c.Path)
	if err != nil {
		return err
	}
	var doc scenario.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return fmt.Errorf("invalid delta document: %w", err)
	}
	for i, op := range doc.Ops {
		if !op.IsInsert() {
			return fmt.Errorf("op %d is not an insert", i)
		}
	}
	_, err = io.WriteString(g.out(), g.conversion().Source(doc))
	return err
}

// HTMLCmd 渲染 HTML
type HTMLCmd struct {
	Path string `arg:"" optional:"" help:"Scenario file (default: stdin)"`
}

func (c *HTMLCmd) Run(g *Globals) error {
	src, err := readInput(c.Path)
	if err != nil {
		return err
	}
	html := g.conversion().HTML(src)
	if html != "" && !strings.HasSuffix(html, "\n") {
		html += "\n"
	}
	_, err = io.WriteString(g.out(), html)
	return err
}

// ErrNotNormalized 有文件往返后发生变化
var ErrNotNormalized = errors.New("scenario files are not normalized")

// CheckCmd 检查文件是否已是往返不动点
type CheckCmd struct {
	Paths []string `arg:"" help:"Scenario files to check" type:"existingfile"`
	Write bool     `short:"w" help:"Rewrite files in normalized form"`
}

func (c *CheckCmd) Run(g *Globals) error {
	conv := g.conversion()
	changed := 0
	for _, path := range c.Paths {
		src, err := readInput(path)
		if err != nil {
			return err
		}
		report := conv.RoundTrip(src)

		switch {
		case report.Source == src:
			fmt.Fprintf(g.out(), "ok       %s  %s\n", utils.ShortDigest(report.Digest), path)
		case c.Write:
			if err := os.WriteFile(path, []byte(report.Source), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(g.out(), "fixed    %s  %s\n", utils.ShortDigest(report.Digest), path)
		default:
			changed++
			fmt.Fprintf(g.out(), "changed  %s  %s\n", utils.ShortDigest(report.Digest), path)
		}
		if !report.FixedPoint {
			fmt.Fprintf(g.out(), "warning: %s does not reach a fixed point after one round trip\n", path)
		}
	}
	if changed > 0 {
		return fmt.Errorf("%d file(s): %w", changed, ErrNotNormalized)
	}
	return nil
}

// WatchCmd 监听文件变化并重新渲染
type WatchCmd struct {
	Path string `arg:"" help:"Scenario file to watch" type:"existingfile"`
	Out  string `short:"o" help:"Write HTML to this file instead of stdout" type:"path"`
}

func (c *WatchCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conv := g.conversion()
	render := func() {
		src, err := readInput(c.Path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		html := conv.HTML(src)
		if c.Out == "" {
			fmt.Fprintln(g.out(), html)
			return
		}
		if err := os.WriteFile(c.Out, []byte(html), 0644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		fmt.Fprintf(os.Stderr, "%s rendered %s\n", time.Now().Format("15:04:05"), c.Out)
	}

	render()
	return watchFile(ctx, c.Path, render)
}

// watchFile 监听文件所在目录，编辑器以重命名方式保存时也能收到事件
func watchFile(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

// PushCmd 把剧本文件保存到服务器
type PushCmd struct {
	Path    string        `arg:"" help:"Scenario file to push" type:"existingfile"`
	Server  string        `help:"Server base URL" default:"http://localhost:8080" env:"SCENARIO_SERVER"`
	ID      string        `help:"Scenario id (default: generated by the server)"`
	Title   string        `help:"Title overriding the first heading"`
	Digest  string        `help:"Expected digest of the stored scenario; rejects the push on mismatch"`
	Timeout time.Duration `help:"Request timeout" default:"30s"`
}

type pushResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Digest string `json:"digest"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *PushCmd) Run(g *Globals) error {
	content, err := readInput(c.Path)
	if err != nil {
		return err
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(c.Server, "/")).
		SetTimeout(c.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "scenarioctl/"+version)

	var result pushResponse
	resp, err := client.R().
		SetBody(services.SaveScenarioRequest{
			ID:         c.ID,
			Title:      c.Title,
			Content:    content,
			BaseDigest: c.Digest,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/api/v1/scenarios")
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	if resp.IsError() || !result.Success {
		if result.Error != nil {
			return fmt.Errorf("server returned %d: %s (%s)", resp.StatusCode(), result.Error.Message, result.Error.Code)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode(), resp.String())
	}

	fmt.Fprintf(g.out(), "saved %s %q digest %s\n", result.Data.ID, result.Data.Title, utils.ShortDigest(result.Data.Digest))
	return nil
}
