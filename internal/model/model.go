// Package model defines the contracts exchanged with the rental backend.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

const DateLayout = "2006-01-02"

var ErrInvalid = errors.New("invalid input")

var strictPolicy = bluemonday.StrictPolicy()

type Proprietario struct {
	ID       int64  `json:"id,omitempty"`
	Nome     string `json:"nome"`
	CPF      string `json:"cpf,omitempty"`
	Email    string `json:"email,omitempty"`
	Telefone string `json:"telefone,omitempty"`
}

func (p *Proprietario) Sanitize() {
	p.Nome = sanitize(p.Nome)
	p.CPF = sanitize(p.CPF)
	p.Email = sanitize(p.Email)
	p.Telefone = sanitize(p.Telefone)
}

func (p Proprietario) Validate() error {
	var problems []string
	if p.Nome == "" {
		problems = append(problems, "nome is required")
	}
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		problems = append(problems, "email is malformed")
	}
	return invalid(problems)
}

type Imovel struct {
	ID             int64   `json:"id,omitempty"`
	Endereco       string  `json:"endereco"`
	Cidade         string  `json:"cidade,omitempty"`
	ProprietarioID int64   `json:"proprietario_id"`
	ValorAluguel   float64 `json:"valor_aluguel"`
}

func (m *Imovel) Sanitize() {
	m.Endereco = sanitize(m.Endereco)
	m.Cidade = sanitize(m.Cidade)
}

func (m Imovel) Validate() error {
	var problems []string
	if m.Endereco == "" {
		problems = append(problems, "endereco is required")
	}
	if m.ProprietarioID <= 0 {
		problems = append(problems, "proprietario_id is required")
	}
	if m.ValorAluguel < 0 {
		problems = append(problems, "valor_aluguel must not be negative")
	}
	return invalid(problems)
}

type Aluguel struct {
	ID         int64   `json:"id,omitempty"`
	ImovelID   int64   `json:"imovel_id"`
	Inquilino  string  `json:"inquilino"`
	Valor      float64 `json:"valor"`
	DataInicio string  `json:"data_inicio"`
	DataFim    string  `json:"data_fim,omitempty"`
}

func (a *Aluguel) Sanitize() {
	a.Inquilino = sanitize(a.Inquilino)
	a.DataInicio = strings.TrimSpace(a.DataInicio)
	a.DataFim = strings.TrimSpace(a.DataFim)
}

func (a Aluguel) Validate() error {
	var problems []string
	if a.ImovelID <= 0 {
		problems = append(problems, "imovel_id is required")
	}
	if a.Inquilino == "" {
		problems = append(problems, "inquilino is required")
	}
	if a.Valor < 0 {
		problems = append(problems, "valor must not be negative")
	}
	start, err := time.Parse(DateLayout, a.DataInicio)
	if err != nil {
		problems = append(problems, "data_inicio must be a date (YYYY-MM-DD)")
	}
	if a.DataFim != "" {
		end, err2 := time.Parse(DateLayout, a.DataFim)
		switch {
		case err2 != nil:
			problems = append(problems, "data_fim must be a date (YYYY-MM-DD)")
		case err == nil && end.Before(start):
			problems = append(problems, "data_fim must not be before data_inicio")
		}
	}
	return invalid(problems)
}

// Input is implemented by all entities accepted from the frontend.
type Input interface {
	Sanitize()
	Validate() error
}

// DecodeList decodes a backend collection payload.
func DecodeList[T any](data []byte) ([]T, error) {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	return items, nil
}

const maxSanitizePasses = 4

// sanitize strips all markup from s, including markup hidden behind entity encoding.
// The result is plain text that the strict policy leaves unchanged.
func sanitize(s string) string {
	for range maxSanitizePasses {
		plain := html.UnescapeString(strictPolicy.Sanitize(s))
		if plain == s {
			return strings.TrimSpace(plain)
		}
		s = plain
	}
	return strings.TrimSpace(strictPolicy.Sanitize(s))
}

func invalid(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}
