package ingress

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/boletoflow/boletoflow/internal/models"
)

// User-facing copy. All conversation text is pt-BR.
const (
	msgHelp = "Olá! 👋 Envie uma foto ou PDF do seu boleto de financiamento para análise, " +
		"ou digite /financiamento para falar sobre o seu financiamento."

	msgAskFinancing = "Você possui algum financiamento ativo no momento?"

	msgOpportunity = "🔎 Analisamos seu boleto e identificamos uma possível oportunidade de economia " +
		"no seu financiamento!\n\nPara continuar, qual é o tipo do seu financiamento?"

	msgAskType = "Qual é o tipo do seu financiamento?"

	msgAnsweredYes = "✅ Você respondeu: Sim"
	msgAnsweredNo  = "✅ Você respondeu: Não"

	msgClosureNo = "Sem problemas! 😊 Quando tiver um financiamento, é só me chamar com /financiamento."

	msgInvalidAmount = "⚠️ Não consegui entender o valor. Por favor, envie apenas o número, " +
		"por exemplo: 50000 ou 50.000,00"

	msgFinishPrevious = "⏳ Você tem uma conversa em andamento. Finalize-a antes de enviar um novo documento."

	msgFileReceived = "📄 Documento recebido! Estamos analisando o seu boleto, isso pode levar alguns instantes."

	msgFileError = "😕 Não consegui processar o seu arquivo. Por favor, tente enviar novamente."

	msgInternalError = "😕 Ocorreu um erro ao registrar as informações. Por favor, tente novamente em instantes."

	msgNoRecommendation = "Olá! Analisamos o seu boleto e, no momento, não encontramos uma oportunidade de " +
		"refinanciamento melhor que as suas condições atuais. Continuaremos de olho para você! 👀"

	labelAutomobile = "Automóvel"
	labelProperty   = "Imóvel"
)

func askAmount(label string) string {
	return fmt.Sprintf("Qual é o valor total do financiamento do seu %s? (ex: 50.000,00)", strings.ToLower(label))
}

func amountConfirmation(financingType string, value float64) string {
	label := labelAutomobile
	if financingType == models.FinancingProperty {
		label = labelProperty
	}
	return fmt.Sprintf("✅ Perfeito! Registramos o financiamento de %s no valor de R$ %s.\n"+
		"Em breve você receberá a nossa análise por aqui. 🚀", strings.ToLower(label), formatBRL(value))
}

// formatBRL renders 1234.5 as "1.234,50".
func formatBRL(value float64) string {
	grouped := humanize.CommafWithDigits(value, 2)
	grouped = strings.NewReplacer(",", ".", ".", ",").Replace(grouped)
	if !strings.Contains(grouped, ",") {
		grouped += ",00"
	} else if i := strings.IndexByte(grouped, ','); len(grouped)-i == 2 {
		grouped += "0"
	}
	return grouped
}
