package dataservice

import (
	"context"
	"strconv"

	"github.com/painel-alugueis/painel/internal/cache"
	"github.com/painel-alugueis/painel/internal/model"
)

func list[T any](ctx context.Context, s *Service, key cache.Key, force bool) ([]T, error) {
	data, err := s.Get(ctx, key, force)
	if err != nil {
		return nil, err
	}
	return model.DecodeList[T](data)
}

func (s *Service) Proprietarios(ctx context.Context, forceRefresh bool) ([]model.Proprietario, error) {
	return list[model.Proprietario](ctx, s, cache.KeyProprietarios, forceRefresh)
}

func (s *Service) CreateProprietario(ctx context.Context, p model.Proprietario) ([]byte, error) {
	return s.Create(ctx, cache.KeyProprietarios, &p)
}

func (s *Service) UpdateProprietario(ctx context.Context, id int64, p model.Proprietario) ([]byte, error) {
	return s.Update(ctx, cache.KeyProprietarios, strconv.FormatInt(id, 10), &p)
}

func (s *Service) DeleteProprietario(ctx context.Context, id int64) ([]byte, error) {
	return s.Delete(ctx, cache.KeyProprietarios, strconv.FormatInt(id, 10))
}

func (s *Service) Imoveis(ctx context.Context, forceRefresh bool) ([]model.Imovel, error) {
	return list[model.Imovel](ctx, s, cache.KeyImoveis, forceRefresh)
}

func (s *Service) CreateImovel(ctx context.Context, m model.Imovel) ([]byte, error) {
	return s.Create(ctx, cache.KeyImoveis, &m)
}

func (s *Service) UpdateImovel(ctx context.Context, id int64, m model.Imovel) ([]byte, error) {
	return s.Update(ctx, cache.KeyImoveis, strconv.FormatInt(id, 10), &m)
}

func (s *Service) DeleteImovel(ctx context.Context, id int64) ([]byte, error) {
	return s.Delete(ctx, cache.KeyImoveis, strconv.FormatInt(id, 10))
}

func (s *Service) Alugueis(ctx context.Context, forceRefresh bool) ([]model.Aluguel, error) {
	return list[model.Aluguel](ctx, s, cache.KeyAlugueis, forceRefresh)
}

func (s *Service) CreateAluguel(ctx context.Context, a model.Aluguel) ([]byte, error) {
	return s.Create(ctx, cache.KeyAlugueis, &a)
}

func (s *Service) UpdateAluguel(ctx context.Context, id int64, a model.Aluguel) ([]byte, error) {
	return s.Update(ctx, cache.KeyAlugueis, strconv.FormatInt(id, 10), &a)
}

func (s *Service) DeleteAluguel(ctx context.Context, id int64) ([]byte, error) {
	return s.Delete(ctx, cache.KeyAlugueis, strconv.FormatInt(id, 10))
}
