package updater

import (
	"fmt"
	"strings"
	"time"
)

// FormatSummary renders a report for the terminal.
func FormatSummary(rep *Report) string {
	var b strings.Builder

	if rep.Snapshot == nil {
		b.WriteString(fmt.Sprintf("❌ ETF 数据更新中止 | run %s\n", rep.RunID))
		if rep.Err != nil {
			b.WriteString(fmt.Sprintf("原因: %v\n", rep.Err))
		}
		return b.String()
	}

	snap := rep.Snapshot
	b.WriteString(fmt.Sprintf("📊 ETF 数据更新 | %s\n\n", snap.AsOf))
	b.WriteString(fmt.Sprintf("覆盖: %d/%d", snap.Covered(), snap.Total))
	if n := len(snap.Failed); n > 0 {
		b.WriteString(fmt.Sprintf(" (失败 %d)", n))
	}
	b.WriteString("\n")
	if snap.FeeUnknown > 0 {
		b.WriteString(fmt.Sprintf("费率未知: %d\n", snap.FeeUnknown))
	}

	s := rep.Stats
	b.WriteString(fmt.Sprintf("60日均线: 上方 %d | 下方 %d", s.Above, s.Below))
	if s.NoRelation > 0 {
		b.WriteString(fmt.Sprintf(" | 数据不足 %d", s.NoRelation))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("均线穿越: 上穿 %d | 下穿 %d\n", s.CrossUp, s.CrossDown))
	b.WriteString(fmt.Sprintf("周MACD柱: 红 %d | 绿 %d", s.MACDRed, s.MACDGreen))
	if s.MACDUnavailable > 0 {
		b.WriteString(fmt.Sprintf(" | 数据不足 %d", s.MACDUnavailable))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("MACD柱转向: 红转绿 %d | 绿转红 %d\n\n", s.RedToGreen, s.GreenToRed))

	b.WriteString(fmt.Sprintf("存储: %s", rep.Outcome))
	if rep.Attempts > 0 {
		b.WriteString(fmt.Sprintf(" (尝试 %d 次)", rep.Attempts))
	}
	if rep.DatasetRows > 0 {
		b.WriteString(fmt.Sprintf(", 数据集 %d 行", rep.DatasetRows))
	}
	b.WriteString("\n")
	if rep.Err != nil {
		b.WriteString(fmt.Sprintf("⚠️ %v\n", rep.Err))
	}
	if rep.ArchivePath != "" {
		b.WriteString(fmt.Sprintf("归档: %s\n", rep.ArchivePath))
	}
	b.WriteString(fmt.Sprintf("耗时: %s\n", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Second)))
	return b.String()
}
