// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisWindowStore: janela deslizante em sorted sets (MULTI + script Lua)
//   - MemoryWindowStore: a mesma semântica em memória, para uma instância
//   - BucketStore: token bucket por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - Memory/Redis/PrometheusStatsStore: estatísticas das decisões
package infra
