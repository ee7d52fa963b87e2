package notifier

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/logrusorgru/aurora"
)

const boxWidth = 72

// safePadding 安全地计算填充空格数量，避免负数
func safePadding(content string, totalWidth int) int {
	// 使用utf8.RuneCountInString计算实际显示字符数，而不是字节数
	runeCount := utf8.RuneCountInString(content)
	padding := totalWidth - runeCount - 2
	if padding < 0 {
		padding = 0
	}
	return padding
}

// formatDuration 格式化时间周期为中文描述
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f秒", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%.0f分钟", d.Minutes())
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%.1f小时", d.Hours())
	}
	return fmt.Sprintf("%.1f天", d.Hours()/24)
}

// box 带边框的输出块，颜色只作用于内容，填充按纯文本宽度计算
type box struct {
	out io.Writer
}

func (b box) top() {
	fmt.Fprintln(b.out)
	fmt.Fprintln(b.out, "╔"+strings.Repeat("═", boxWidth)+"╗")
}

func (b box) bottom() {
	fmt.Fprintln(b.out, "╚"+strings.Repeat("═", boxWidth)+"╝")
	fmt.Fprintln(b.out)
}

func (b box) blank() {
	fmt.Fprintln(b.out, "║"+strings.Repeat(" ", boxWidth)+"║")
}

func (b box) line(content string) {
	b.colored(content, nil)
}

func (b box) colored(content string, paint func(interface{}) aurora.Value) {
	padding := strings.Repeat(" ", safePadding(content, boxWidth))
	if paint != nil {
		fmt.Fprintf(b.out, "║ %s%s ║\n", paint(content), padding)
		return
	}
	fmt.Fprintf(b.out, "║ %s%s ║\n", content, padding)
}
