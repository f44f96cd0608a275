// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"testing"
)

func TestMemorySignaler_OffersReachTheirTarget(t *testing.T) {
	signaler := NewMemorySignaler()
	ctx := context.Background()

	signaler.PublishOffer(ctx, "brave-red-fox~a", "cozy-pine-otter", "offer-a")
	signaler.PublishOffer(ctx, "quiet-blue-owl~b", "cozy-pine-otter", "offer-b")
	signaler.PublishOffer(ctx, "brave-red-fox~c", "someone-else-entirely", "offer-c")

	offers, err := signaler.PollOffers(ctx, "cozy-pine-otter")
	if err != nil {
		t.Fatalf("PollOffers: %v", err)
	}
	got := make(map[string]string)
	for _, offer := range offers {
		got[offer.Peer] = offer.SDP
	}
	if len(got) != 2 || got["brave-red-fox~a"] != "offer-a" || got["quiet-blue-owl~b"] != "offer-b" {
		t.Errorf("offers = %v", got)
	}

	again, _ := signaler.PollOffers(ctx, "cozy-pine-otter")
	if len(again) != 0 {
		t.Errorf("second poll returned %d offers, want 0", len(again))
	}
}

func TestMemorySignaler_RepublishIsSeenAgain(t *testing.T) {
	signaler := NewMemorySignaler()
	ctx := context.Background()

	signaler.PublishAnswer(ctx, "brave-red-fox~a", "cozy-pine-otter", "first")
	if answers, _ := signaler.PollAnswers(ctx, "brave-red-fox~a"); len(answers) != 1 {
		t.Fatalf("first poll returned %d answers", len(answers))
	}

	signaler.PublishAnswer(ctx, "brave-red-fox~a", "cozy-pine-otter", "second")
	answers, _ := signaler.PollAnswers(ctx, "brave-red-fox~a")
	if len(answers) != 1 || answers[0].SDP != "second" || answers[0].Peer != "cozy-pine-otter" {
		t.Errorf("answers after republish = %+v", answers)
	}
}

func TestMemorySignaler_AnswersAreScopedToOfferer(t *testing.T) {
	signaler := NewMemorySignaler()
	ctx := context.Background()

	signaler.PublishAnswer(ctx, "brave-red-fox~a", "cozy-pine-otter", "for-a")
	signaler.PublishAnswer(ctx, "brave-red-fox~b", "cozy-pine-otter", "for-b")

	answers, _ := signaler.PollAnswers(ctx, "brave-red-fox~b")
	if len(answers) != 1 || answers[0].SDP != "for-b" {
		t.Errorf("answers for b = %+v", answers)
	}
}

func TestMemorySignaler_Forget(t *testing.T) {
	signaler := NewMemorySignaler()
	ctx := context.Background()

	signaler.PublishOffer(ctx, "brave-red-fox~a", "cozy-pine-otter", "offer")
	signaler.PublishAnswer(ctx, "brave-red-fox~a", "cozy-pine-otter", "answer")
	signaler.PublishOffer(ctx, "quiet-blue-owl~b", "cozy-pine-otter", "other")

	if err := signaler.Forget(ctx, "brave-red-fox~a"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	if answers, _ := signaler.PollAnswers(ctx, "brave-red-fox~a"); len(answers) != 0 {
		t.Errorf("answers after Forget = %+v", answers)
	}
	offers, _ := signaler.PollOffers(ctx, "cozy-pine-otter")
	if len(offers) != 1 || offers[0].Peer != "quiet-blue-owl~b" {
		t.Errorf("offers after Forget = %+v", offers)
	}
}
