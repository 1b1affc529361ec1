// Package dispatch escolhe a rota de uma requisição e executa o pipeline de
// middlewares do resolver que a escolheu.
//
// Visão geral (pacotes):
//
//   - domain: Route, Target, Request, Response e erros
//   - route: normaliza especificações de rota (string, *route.Spec, *domain.Route)
//   - registry: resolvers ordenados por prioridade, com a entrada padrão
//   - pipeline: cadeia de middlewares com modo normal e modo de erro
//   - static: tabela host/prefixo usada pelo resolver padrão
//   - dispatch (este pacote): Resolver, que junta tudo
//
// Fluxo de Resolve:
//
//  1. percorre os resolvers na ordem do registro
//  2. declarativos que não casam host/método/path são pulados
//  3. o primeiro resultado não nulo vence, desde que o prefixo da rota case com o path
//  4. roda o pipeline da entrada vencedora
//
// Nenhuma rota é (nil, nil), que não é erro: quem chama decide o 404.
package dispatch
