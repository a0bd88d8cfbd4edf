package cli

import (
	"io"

	httpctrl "github.com/Dev-Marygold/Laffey/pkg/controller/http"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
)

type AdminClient = adminClient

func NewAdminClient(baseURL, token string) *AdminClient {
	return newAdminClient(baseURL, token)
}

func Confirm(r io.Reader, w io.Writer, prompt string) (bool, error) {
	return confirm(r, w, prompt)
}

func RenderStats(w io.Writer, stats *model.Stats)                   { renderStats(w, stats) }
func RenderWipe(w io.Writer, result *model.WipeResult)              { renderWipe(w, result) }
func RenderConsolidation(w io.Writer, r *model.ConsolidationResult) { renderConsolidation(w, r) }
func RenderMemories(w io.Writer, m []httpctrl.Memory)               { renderMemories(w, m) }
