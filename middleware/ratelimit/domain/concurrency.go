package domain

import "context"

// SlotPool limita quantas requisições são despachadas ao mesmo tempo.
//
// Acquire bloqueia até haver vaga ou o ctx encerrar. O release devolvido libera
// a vaga; chamadas repetidas são ignoradas.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	// InUse é o número de vagas ocupadas agora.
	InUse() int
	Cap() int
}
