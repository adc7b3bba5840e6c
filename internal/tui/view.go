package tui

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/csheth/medscan/internal/media"
	"github.com/csheth/medscan/internal/session"
)

func (m *model) View() string {
	if m.stage == stageCamera {
		return joinNonEmpty([]string{m.heroView(), m.cameraView(), m.footerView()})
	}
	m.refreshViewportIfDirty()
	snap := m.snapshot()
	parts := []string{m.heroView()}
	if snap.HasError() {
		parts = append(parts, errorBannerStyle.Render(snap.Err))
	}
	parts = append(parts, m.scanPanel(snap), m.chatPanel(), m.composerPanel(snap), m.footerView())
	if m.helpVisible {
		parts = append(parts, m.keyLegendView())
	}
	return joinNonEmpty(parts)
}

func (m *model) heroView() string {
	title := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(heroTitle),
		taglineStyle.Render(heroTagline),
	)
	if !m.layout.showLogo {
		return heroBoxStyle.Render(title)
	}
	return lipgloss.JoinVertical(lipgloss.Left, renderLogo(), heroBoxStyle.Render(title))
}

func (m *model) scanPanel(snap session.Snapshot) string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Upload or Scan Image"))
	b.WriteRune('\n')
	if snap.Image == nil {
		b.WriteString(helperStyle.Render("Type a file path or image URL below and press Enter, or press Ctrl+O to open the camera."))
	} else {
		b.WriteString(imageSummary(*snap.Image))
		b.WriteRune('\n')
		b.WriteString(helperStyle.Render("Ctrl+X removes the image."))
	}
	sections := []string{b.String()}

	if snap.Flags.Analyzing {
		sections = append(sections, fmt.Sprintf("%s %s", m.spinner.View(), helperStyle.Render("Analyzing image...")))
	}
	if snap.Analysis != nil {
		wrap := m.wrapWidth(4)
		analysis := joinLines(
			sectionHeaderStyle.Render("Analysis Results"),
			m.text.render(snap.Analysis.Text, wrap),
			confidenceLine(snap.Analysis.Confidence),
		)
		sections = append(sections, analysis)
	}
	return panelStyle.Width(m.layout.viewportWidth).Render(joinNonEmpty(sections))
}

func imageSummary(img media.Image) string {
	origin := "Uploaded image"
	if img.Origin() == media.OriginCaptured {
		origin = "Captured image"
	}
	return fmt.Sprintf("%s  •  %s  •  %s  •  sha256:%s",
		origin, img.MIMEType(), humanize.Bytes(uint64(img.Size())), img.ShortDigest())
}

func confidenceLine(confidence float64) string {
	return fmt.Sprintf("Confidence: %s %s", confidenceBar(confidence, confidenceBarWidth), formatConfidence(confidence))
}

func confidenceBar(confidence float64, width int) string {
	filled := int(math.Round(confidence / 100 * float64(width)))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return barFilledStyle.Render(strings.Repeat("█", filled)) + barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func formatConfidence(confidence float64) string {
	return strconv.FormatFloat(confidence, 'f', -1, 64) + "%"
}

func (m *model) chatPanel() string {
	return joinLines(
		sectionHeaderStyle.Render("Chat with AI Assistant"),
		m.viewport.View(),
	)
}

func (m *model) composerPanel(snap session.Snapshot) string {
	label := "Image Source"
	help := "Enter: analyze • Ctrl+O: camera • ?: help"
	if m.composerMode == composerModeChat {
		label = "Ask the Assistant"
		help = "Enter: send • Tab: new image • Ctrl+S: export • Ctrl+X: remove"
	} else if snap.Analysis != nil {
		help = "Enter: analyze and replace • Tab: back to chat"
	}
	return joinLines(
		sectionHeaderStyle.Render(label),
		m.composer.View(),
		helperStyle.Render(help),
	)
}

func (m *model) cameraView() string {
	var b strings.Builder
	b.WriteString(sectionHeaderStyle.Render("Camera"))
	b.WriteRune('\n')
	b.WriteString(helperStyle.Render(m.config.Camera.Name()))
	b.WriteRune('\n')
	b.WriteRune('\n')
	if m.camErr != "" {
		b.WriteString(errorStyle.Render(m.camErr))
		b.WriteRune('\n')
	}
	if m.camStatus != "" {
		status := m.camStatus
		if m.running.running(jobKindCameraOpen) || m.running.running(jobKindCapture) {
			status = fmt.Sprintf("%s %s", m.spinner.View(), status)
		}
		b.WriteString(status)
		b.WriteRune('\n')
	}
	hint := "Enter: capture • Esc: close"
	if m.camSession == nil && m.camErr != "" {
		hint = "r: retry • Esc: close"
	}
	b.WriteString(helperStyle.Render(hint))
	return overlayStyle.Render(b.String())
}

func (m *model) footerView() string {
	var lines []string
	if m.noticeError != "" {
		lines = append(lines, errorStyle.Render(m.noticeError))
	}
	if m.infoMessage != "" {
		lines = append(lines, helperStyle.Render(m.infoMessage))
	}
	lines = append(lines, m.sessionMeterView())
	return joinLines(lines...)
}

func (m *model) sessionMeterView() string {
	snap := m.snapshot()
	stats := []string{
		fmt.Sprintf("Phase %s", snap.Phase()),
		fmt.Sprintf("Turns %d", snap.Log.Len()),
	}
	if m.config.Backend != "" {
		stats = append(stats, m.config.Backend)
	}
	if kinds := m.running.kinds(); len(kinds) > 0 {
		stats = append(stats, fmt.Sprintf("%s Jobs: %s", m.spinner.View(), strings.Join(kinds, ", ")))
	}
	return statusBarStyle.Render(strings.Join(stats, "  •  "))
}

type keyHint struct {
	Key         string
	Description string
}

func (m *model) keyLegendView() string {
	hints := []keyHint{
		{"Enter", "Analyze or send"},
		{"Tab", "Switch image/chat"},
		{"Ctrl+O", "Open camera"},
		{"Ctrl+X", "Remove image"},
		{"Ctrl+E", "Dismiss error"},
		{"Ctrl+S", "Export report"},
		{"PgUp/PgDn", "Scroll chat"},
		{"?", "Toggle cheatsheet"},
		{"Ctrl+C", "Quit"},
	}
	rows := []string{sectionHeaderStyle.Render("Key Cheatsheet")}
	const columns = 3
	for i := 0; i < len(hints); i += columns {
		end := i + columns
		if end > len(hints) {
			end = len(hints)
		}
		var cells []string
		for _, hint := range hints[i:end] {
			key := keyStyle.Render(hint.Key)
			desc := keyDescStyle.Width(22).Render(" " + hint.Description)
			cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return legendBoxStyle.Render(strings.Join(rows, "\n"))
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

func joinLines(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n")
}

func renderLogo() string {
	width := 0
	lineRunes := make([][]rune, len(logoArtLines))
	for i, line := range logoArtLines {
		runes := []rune(line)
		lineRunes[i] = runes
		if len(runes) > width {
			width = len(runes)
		}
	}
	width++
	height := len(logoArtLines) + 1

	type cell struct {
		r     rune
		style lipgloss.Style
	}
	grid := make([][]cell, height)
	for i := range grid {
		grid[i] = make([]cell, width)
	}
	// Shadow first, offset down and right, then the face on top.
	for y, runes := range lineRunes {
		for x, r := range runes {
			if r != ' ' {
				grid[y+1][x+1] = cell{r: r, style: logoShadowStyle}
			}
		}
	}
	for y, runes := range lineRunes {
		for x, r := range runes {
			if r != ' ' {
				grid[y][x] = cell{r: r, style: logoFaceStyle}
			}
		}
	}

	lines := make([]string, height)
	for y, row := range grid {
		var b strings.Builder
		for _, c := range row {
			if c.r == 0 {
				b.WriteRune(' ')
				continue
			}
			b.WriteString(c.style.Render(string(c.r)))
		}
		lines[y] = b.String()
	}
	return logoContainerStyle.Render(strings.Join(lines, "\n"))
}

var logoArtLines = []string{
	"███╗   ███╗  ███████╗  ██████╗   ███████╗   ██████╗   █████╗   ███╗   ██╗  ",
	"████╗ ████║  ██╔════╝  ██╔══██╗  ██╔════╝  ██╔════╝  ██╔══██╗  ████╗  ██║  ",
	"██╔████╔██║  █████╗    ██║  ██║  ███████╗  ██║       ███████║  ██╔██╗ ██║  ",
	"██║╚██╔╝██║  ██╔══╝    ██║  ██║  ╚════██║  ██║       ██╔══██║  ██║╚██╗██║  ",
	"██║ ╚═╝ ██║  ███████╗  ██████╔╝  ███████║  ╚██████╗  ██║  ██║  ██║ ╚████║  ",
	"╚═╝     ╚═╝  ╚══════╝  ╚═════╝   ╚══════╝   ╚═════╝  ╚═╝  ╚═╝  ╚═╝  ╚═══╝  ",
}
