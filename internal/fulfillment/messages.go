package fulfillment

import (
	"fmt"
	"strings"

	"carro-de-som/pkg/models"
)

// Messages содержит тексты для пользователей (português)
type Messages struct {
	price float64
}

// NewMessages создает набор текстов для указанной цены
func NewMessages(price float64) *Messages {
	return &Messages{price: price}
}

// Price возвращает цену в формате R$ 0,00
func (m *Messages) Price() string {
	return "R$ " + strings.Replace(fmt.Sprintf("%.2f", m.price), ".", ",", 1)
}

func (m *Messages) Help() string {
	return "🎙 <b>Locução estilo carro de som</b>\n\n" +
		"<code>!tts seu texto</code> — locução só com voz\n" +
		"<code>!ttsbg seu texto</code> — locução com música de fundo (envie o áudio antes de pagar)\n" +
		"<code>!vol 0-100</code> — volume da música de fundo\n" +
		"<code>!refazer</code> — gerar a locução novamente sem pagar outra vez\n\n" +
		"Cada locução custa " + m.Price() + " via PIX."
}

func (m *Messages) PaymentInstructions(code string, mode models.Mode) string {
	var b strings.Builder
	b.WriteString("💵 Para receber sua locução, pague " + m.Price() + " via PIX:\n")
	b.WriteString("Código Copia e Cola:\n")
	b.WriteString(code)
	if mode == models.ModeWithMusic {
		b.WriteString("\n\nSe quiser música de fundo, envie o arquivo de áudio antes do pagamento.")
	}
	return b.String()
}

func (m *Messages) QRCaption() string {
	return "QR Code PIX — " + m.Price()
}

func (m *Messages) EmptyText() string {
	return "⚠️ Envie o texto da locução. Ex: !tts Promoção imperdível!"
}

func (m *Messages) ChargeFailed() string {
	return "❌ Não foi possível gerar a cobrança PIX. Tente novamente em instantes."
}

func (m *Messages) MusicReceived() string {
	return "🎵 Música de fundo recebida com sucesso! Ela será usada na locução."
}

func (m *Messages) MusicNotExpected() string {
	return "⚠️ Para usar música de fundo, comece o pedido com !ttsbg seguido do texto."
}

func (m *Messages) MusicTooLate() string {
	return "⚠️ O pagamento deste pedido já foi confirmado, não é possível trocar a música."
}

func (m *Messages) MusicTooLarge(maxMB int) string {
	return fmt.Sprintf("⚠️ Arquivo muito grande. Máximo %d MB.", maxMB)
}

func (m *Messages) MusicDownloadFailed() string {
	return "❌ Não consegui baixar o áudio. Tente enviar novamente."
}

func (m *Messages) VolumeUsage() string {
	return "⚠️ Informe um valor de volume entre 0 e 100. Ex: !vol 30"
}

func (m *Messages) SendMusicFirst() string {
	return "⚠️ Você precisa enviar uma música primeiro com !ttsbg."
}

func (m *Messages) VolumeSet(percent int) string {
	return fmt.Sprintf("🔊 Volume da música ajustado para %d%%", percent)
}

func (m *Messages) PaymentConfirmed() string {
	return "✅ Pagamento confirmado! Gerando sua locução..."
}

func (m *Messages) RedoDone() string {
	return "🔁 Locução refeita com sucesso!"
}

func (m *Messages) NothingToRedo() string {
	return "⚠️ Você ainda não tem uma locução para refazer. Use !tts seguido do texto."
}

func (m *Messages) RedoNotPaid() string {
	return "⚠️ Sua locução será gerada assim que o pagamento for confirmado."
}

func (m *Messages) ProviderExhausted() string {
	return "❌ O serviço de voz está indisponível no momento. Seu pagamento está garantido: envie !refazer mais tarde."
}

func (m *Messages) MixFailed() string {
	return "❌ Não foi possível mixar a música de fundo. Seu pagamento está garantido: envie !refazer para tentar novamente."
}

func (m *Messages) FulfillmentFailed() string {
	return "❌ Ocorreu um erro ao gerar sua locução. Seu pagamento está garantido: envie !refazer para tentar novamente."
}

func (m *Messages) TooManyRequests() string {
	return "⚠️ Muitas mensagens seguidas. Aguarde um minuto."
}
