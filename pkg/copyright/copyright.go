package copyright

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"osaccount/pkg/version"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var (
	// 颜色组合
	titleColor   = color.New(color.FgHiCyan, color.Bold)
	versionColor = color.New(color.FgHiGreen)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	defaultColor = color.New(color.FgWhite)
	numberColor  = color.New(color.FgHiYellow)
)

// AccountRow 启动信息中的一行账号
type AccountRow struct {
	LocalID  int
	Name     string
	Type     string
	Serial   int64
	Active   bool
	Verified bool
}

// ExecutorRow 已注册的认证执行器
type ExecutorRow struct {
	Name       string
	AuthType   string
	TrustLevel int32
}

// SystemStatus 启动时展示的系统状态
type SystemStatus struct {
	Version        string
	DatabaseDriver string
	RedisStatus    bool
	MongoDBStatus  bool
	AuditEnabled   bool
	AuthEnabled    bool
	Accounts       []AccountRow
	Executors      []ExecutorRow
	MaxAccounts    int
	LogCount       int64
}

// PrintCopyright 打印版权信息
func PrintCopyright(status SystemStatus) {
	// 清空屏幕
	fmt.Print("\033[H\033[2J")

	// 打印 Logo
	printLogo()

	// 打印系统信息框架
	printFrame(status)
}

func printFrame(status SystemStatus) {
	titleColor.Println("| System Information")
	defaultColor.Println("│")

	// 版本信息
	defaultColor.Print("│ Version    : ")
	versionInfo := version.GetVersionInfo()
	versionColor.Printf("%s", versionInfo["version"])
	if hash, ok := versionInfo["git_commit"]; ok && len(hash) >= 8 {
		defaultColor.Printf(" (")
		versionColor.Printf("%s", hash[:8])
		defaultColor.Printf(")")
	}
	if buildTime, ok := versionInfo["build_time"]; ok {
		defaultColor.Printf(" built at %s", buildTime)
	}
	fmt.Println()

	// 存储状态
	defaultColor.Println("│")
	defaultColor.Println("│ Storage")
	defaultColor.Print("│ ⚡ Database : ")
	successColor.Println(status.DatabaseDriver)
	defaultColor.Print("│ ⚡ Redis    : ")
	printStatus(status.RedisStatus, "in-memory tokens")
	defaultColor.Print("│ ⚡ MongoDB  : ")
	printStatus(status.MongoDBStatus, "photos in database")
	defaultColor.Print("│ ⚡ Audit    : ")
	printStatus(status.AuditEnabled, "disabled")
	defaultColor.Print("│ ⚡ Caller auth : ")
	printStatus(status.AuthEnabled, "disabled")

	// 执行器
	defaultColor.Println("│")
	defaultColor.Println("│ Executors")
	if len(status.Executors) > 0 {
		for _, e := range status.Executors {
			defaultColor.Print("│ ⚡ ")
			successColor.Printf("%-14s", e.Name)
			defaultColor.Printf(" %s, ATL %d\n", e.AuthType, e.TrustLevel)
		}
	} else {
		defaultColor.Print("│ ")
		warningColor.Println("No executors enabled")
	}

	// 统计信息
	defaultColor.Println("│")
	defaultColor.Println("│ Statistics")
	defaultColor.Print("│ ⚡ Accounts : ")
	numberColor.Printf("%d", len(status.Accounts))
	defaultColor.Printf(" / %d\n", status.MaxAccounts)
	defaultColor.Print("│ ⚡ Logs     : ")
	numberColor.Printf("%d\n", status.LogCount)
	defaultColor.Println("│")

	PrintAccounts(os.Stdout, status.Accounts)

	defaultColor.Print("│ ")
	titleColor.Print("osaccount")
	defaultColor.Println(" local account service")
	fmt.Println()
}

// PrintAccounts 以表格形式输出账号列表
func PrintAccounts(w io.Writer, rows []AccountRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Type", "Serial", "Active", "Verified"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, row := range rows {
		table.Append([]string{
			strconv.Itoa(row.LocalID),
			row.Name,
			row.Type,
			strconv.FormatInt(row.Serial, 10),
			yesNo(row.Active),
			yesNo(row.Verified),
		})
	}
	table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printStatus(ok bool, fallback string) {
	if ok {
		successColor.Print("Connected")
	} else {
		warningColor.Print(fallback)
	}
	fmt.Println()
}

func printLogo() {
	logo := `
   ____  _____                              __
  / __ \/ ___/____ _____________  __  ______  / /_
 / / / /\__ \/ __ ` + "`" + `/ ___/ ___/ __ \/ / / / __ \/ __/
/ /_/ /___/ / /_/ / /__/ /__/ /_/ / /_/ / / / / /_
\____//____/\__,_/\___/\___/\____/\__,_/_/ /_/\__/
`
	lines := strings.Split(logo, "\n")
	for _, line := range lines {
		titleColor.Println(line)
	}
}
