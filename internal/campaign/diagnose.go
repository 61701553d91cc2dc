package campaign

import (
	"fmt"
	"strings"
)

// ProxyExhaustedDetail is the failure detail once infrastructure retries run
// out.
const ProxyExhaustedDetail = "proxy sin respuesta"

// AbortedDetail marks a job cancelled before it sent anything.
const AbortedDetail = "cancelado antes del envío"

const fallbackDetail = "envío falló"

// Known platform failure signatures, checked in order.
var signatures = []struct {
	needle string
	hint   string
}{
	{"login_required", "La plataforma solicitó un nuevo login."},
	{"challenge_required", "Se requiere resolver un challenge en la app."},
	{"feedback_required", "La plataforma bloqueó temporalmente acciones de esta cuenta."},
	{"rate_limit", "Se alcanzó un rate limit. Conviene pausar unos minutos."},
	{"checkpoint", "La plataforma requiere verificación adicional (checkpoint)."},
	{"consent_required", "La sesión requiere aprobación en la app oficial."},
}

// Diagnose maps an error text to an operator hint. Unknown errors return "".
// Matching is best effort: the platform has no structured error codes.
func Diagnose(detail string) string {
	low := strings.ToLower(detail)
	for _, s := range signatures {
		if strings.Contains(low, s.needle) {
			return s.hint
		}
	}
	return ""
}

func proxyAttention(account string) string {
	return fmt.Sprintf("El proxy configurado para @%s falló repetidamente. Revisá la opción 1 para actualizarlo o quitarlo.", account)
}
