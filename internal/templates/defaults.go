package templates

const DefaultReminder = `Olá {{nome}}, 

Esperamos que esteja bem! Este é apenas um lembrete amigável de que você possui uma fatura no valor de {{valor}} com vencimento em {{vencimento}}.

Para sua comodidade, você pode efetuar o pagamento através do link abaixo:
{{link}}

Caso já tenha efetuado o pagamento, por favor desconsidere esta mensagem.

Atenciosamente,
Equipe WhatZPay`

const DefaultOverdue = `Olá {{nome}},

Notamos que sua fatura no valor de {{valor}} venceu há {{diasAtraso}} dia(s), em {{vencimento}}, e consta como pendente em nosso sistema.

Para regularizar sua situação, por favor efetue o pagamento através do link abaixo:
{{link}}

Caso já tenha efetuado o pagamento, por favor nos informe para atualizarmos seu status.

Atenciosamente,
Equipe WhatZPay`

func Defaults() Pair {
	return Pair{Reminder: DefaultReminder, Overdue: DefaultOverdue}
}
