package message

import (
	"fmt"
	"strings"
)

const ruleWidth = 100

func rule(sb *strings.Builder, c byte) {
	sb.WriteString(strings.Repeat(string(c), ruleWidth))
	sb.WriteByte('\n')
}

func writeHeader(sb *strings.Builder, h *NetworkMessageHeader) {
	if h == nil {
		sb.WriteString("(no header)\n")
		return
	}
	fmt.Fprintf(sb, "%-20s %d\n", "Protocol Version:", h.Version)
	fmt.Fprintf(sb, "%-20s %#02x\n", "Flags:", byte(h.Flags))
	fmt.Fprintf(sb, "%-20s %#02x\n", "ExtendedFlags 1:", byte(h.ExtendedFlags1))
	fmt.Fprintf(sb, "%-20s %#02x\n", "ExtendedFlags 2:", byte(h.ExtendedFlags2))
	fmt.Fprintf(sb, "%-20s %s\n", "Message Type:", h.MessageType())
	fmt.Fprintf(sb, "%-20s %s\n", "PublisherID:", h.PublisherID)
}

func writeDataPoints(sb *strings.Builder, meta *MetaFrame, items []DataPoint) {
	fmt.Fprintf(sb, "%10s | %-30s | %10s | %10s | %-30s | %s\n",
		"Index", "Name", "Orcat", "Quality", "Timestamp", "Value")
	rule(sb, '-')
	for _, dp := range items {
		name := ""
		if meta != nil && int(dp.Index) < len(meta.Fields) {
			name = meta.Fields[dp.Index].Name
		}
		fmt.Fprintf(sb, "%10d | %-30s | %10d | %#10x | %-30s | %s\n",
			dp.Index, name, dp.Orcat, dp.Quality,
			dp.Time().UTC().Format("2006-01-02T15:04:05.0000000Z"), dp.Value)
	}
}
