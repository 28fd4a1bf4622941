package formops

import (
	"context"

	"tally-node/internal/domain"
	"tally-node/internal/usecase/blocks"
)

// GetAllForms lists the workspace's forms.
func (s *Service) GetAllForms(ctx context.Context) (forms []domain.Form, err error) {
	ctx, end := s.startOp(ctx, "get_all_forms", "", Flags{})
	defer end(&err)
	return s.api.ListForms(ctx)
}

// GetForm fetches one form.
func (s *Service) GetForm(ctx context.Context, formID string) (form *domain.Form, err error) {
	ctx, end := s.startOp(ctx, "get_form", formID, Flags{})
	defer end(&err)

	if err := requireFormID("get_form", formID); err != nil {
		return nil, err
	}
	return s.fetch(ctx, formID)
}

// ListQuestions returns the form's question listing.
func (s *Service) ListQuestions(ctx context.Context, formID string) (questions []domain.Question, err error) {
	ctx, end := s.startOp(ctx, "list_questions", formID, Flags{})
	defer end(&err)

	if err := requireFormID("list_questions", formID); err != nil {
		return nil, err
	}
	return s.api.ListQuestions(ctx, formID)
}

// ListQuestionGroups names every block group of the form for selection
// lists, sorted by name.
func (s *Service) ListQuestionGroups(ctx context.Context, formID string) (groups []blocks.QuestionGroup, err error) {
	ctx, end := s.startOp(ctx, "list_question_groups", formID, Flags{})
	defer end(&err)

	if err := requireFormID("list_question_groups", formID); err != nil {
		return nil, err
	}
	f, err := s.fetch(ctx, formID)
	if err != nil {
		return nil, err
	}
	return blocks.QuestionGroups(f.Blocks), nil
}
