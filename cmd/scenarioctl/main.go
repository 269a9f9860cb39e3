// Command scenarioctl converts, checks and publishes scenario files from the command line.
package main

import (
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/Corphon/NovelGenPage/internal/config"
	"github.com/Corphon/NovelGenPage/internal/utils"
)

const version = "0.2.0"

// Globals 所有子命令共享的参数
type Globals struct {
	Engine    string    `help:"Markdown engine for HTML output (goldmark, none)" enum:"goldmark,none" default:"goldmark" env:"MARKDOWN_ENGINE"`
	HardWraps bool      `name:"hard-wraps" help:"Render single newlines as <br>" default:"true" negatable:""`
	Verbose   bool      `short:"v" help:"Log conversions to stderr"`
	Out       io.Writer `kong:"-"`
}

// CLI scenarioctl 的命令行定义
var CLI struct {
	Globals

	Blocks  BlocksCmd        `cmd:"" help:"Parse a scenario into blocks"`
	Delta   DeltaCmd         `cmd:"" help:"Convert a scenario into a delta document"`
	Source  SourceCmd        `cmd:"" help:"Serialize a delta document back to scenario source"`
	HTML    HTMLCmd          `cmd:"" name:"html" help:"Render a scenario to HTML"`
	Check   CheckCmd         `cmd:"" help:"Verify scenario files survive a round trip unchanged"`
	Watch   WatchCmd         `cmd:"" help:"Re-render a scenario whenever the file changes"`
	Push    PushCmd          `cmd:"" help:"Save a scenario file to a running server"`
	Version kong.VersionFlag `help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("scenarioctl"),
		kong.Description("Branching scenario conversion tool"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	CLI.Globals.Out = os.Stdout
	logger := utils.GetLogger()
	logger.SetOutput(os.Stderr)
	logger.Enable(CLI.Globals.Verbose)
	if CLI.Globals.Verbose {
		logger.SetLogLevel(utils.DEBUG)
	}

	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}

func (g *Globals) appConfig() *config.AppConfig {
	return &config.AppConfig{MarkdownEngine: g.Engine, HardWraps: g.HardWraps}
}

func (g *Globals) out() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}
