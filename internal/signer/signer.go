package signer

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/RecoveryAshes/dycrawl/internal/utils"
)

// Strategy 单个签名方案
// Sign对baseURL与query产出完整签名URL;不可用时返回错误交由上层换下一个方案
type Strategy interface {
	Name() string
	Sign(baseURL, query string) (signedURL, userAgent string, err error)
}

// Signer 按优先级尝试的签名方案链
// a_bogus为首选,X-Bogus兜底;所有方案耗尽时返回最后一个错误,绝不产出未签名URL
type Signer struct {
	strategies []Strategy
}

// NewSigner 构造默认方案链
func NewSigner(userAgent string) *Signer {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Signer{
		strategies: []Strategy{
			&abogusStrategy{signer: NewABogus(GenerateFingerprint("Edge", rng), userAgent)},
			&xbogusStrategy{signer: NewXBogus(userAgent)},
		},
	}
}

// NewSignerWith 使用给定方案链构造,供测试注入
func NewSignerWith(strategies ...Strategy) *Signer {
	return &Signer{strategies: strategies}
}

// Sign 依次尝试各方案,失败时静默降级到下一个
func (s *Signer) Sign(baseURL, query string) (signedURL, userAgent string, err error) {
	var lastErr error
	for i, strategy := range s.strategies {
		signedURL, userAgent, err = strategy.Sign(baseURL, query)
		if err == nil {
			return signedURL, userAgent, nil
		}
		lastErr = err
		if i < len(s.strategies)-1 {
			utils.Warnf("签名方案 %s 不可用,降级到下一方案: %v", strategy.Name(), err)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("没有可用的签名方案")
	}
	return "", "", lastErr
}

type abogusStrategy struct {
	signer *ABogus
}

func (s *abogusStrategy) Name() string { return "a_bogus" }

func (s *abogusStrategy) Sign(baseURL, query string) (string, string, error) {
	signedQuery, _, ua, err := s.signer.Generate(query, "")
	if err != nil {
		return "", "", err
	}
	return baseURL + "?" + signedQuery, ua, nil
}

type xbogusStrategy struct {
	signer *XBogus
}

func (s *xbogusStrategy) Name() string { return "X-Bogus" }

func (s *xbogusStrategy) Sign(baseURL, query string) (string, string, error) {
	signedURL, _, ua := s.signer.Build(baseURL + "?" + query)
	return signedURL, ua, nil
}
