package assessment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/internal/store"
	"IBSCare-AI/pkg/logger"
)

const (
	latestDocID  = "latest"
	profileDocID = "profile"
)

// Answer 是单道题的作答。
type Answer struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// Result 是提交评估后返回给用户的结果。
type Result struct {
	Classification Classification `json:"classification"`
	CompletedAt    time.Time      `json:"completed_at"`
	NextSteps      []string       `json:"next_steps"`
}

// Record 是持久化的最近一次评估。
type Record struct {
	Result
	Answers []Answer `json:"answers"`
}

// Profile 记录用户档案中与评估相关的字段。
type Profile struct {
	Email               string    `json:"email,omitempty"`
	IBSType             string    `json:"ibs_type"`
	AssessmentCompleted bool      `json:"assessment_completed"`
	AssessmentDate      time.Time `json:"assessment_date"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Service 负责评估的校验、打分与存储。
type Service struct {
	docs   store.Documents
	now    func() time.Time
	logger *slog.Logger
}

// NewService 创建评估服务。
func NewService(docs store.Documents) *Service {
	return &Service{docs: docs, now: time.Now, logger: logger.Named("assessment")}
}

// Submit 校验答卷、计算分类并保存为用户最新的评估结果。
// 用户档案随后合并更新，失败时只记录日志，评估结果以 latest 文档为准。
func (s *Service) Submit(ctx context.Context, userID, email string, answers map[string]string) (Result, error) {
	if userID == "" {
		return Result{}, xerrors.New(xerrors.CodeUnauthenticated, "缺少用户身份")
	}
	normalized, err := validateAnswers(answers)
	if err != nil {
		return Result{}, err
	}

	classification := Classify(normalized)
	result := Result{
		Classification: classification,
		CompletedAt:    s.now().UTC(),
		NextSteps:      NextSteps(classification.IBSType),
	}
	record := Record{Result: result, Answers: orderedAnswers(normalized)}
	if err := s.docs.Put(ctx, store.CollectionAssessments, userID, latestDocID, result.CompletedAt.Format(time.RFC3339Nano), record); err != nil {
		return Result{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存评估结果失败")
	}

	if err := s.updateProfile(ctx, userID, email, result); err != nil {
		s.logger.Warn("更新用户档案失败", slog.String("user_id", userID), logger.Err(err))
	}

	s.logger.Info("评估已提交",
		slog.String("user_id", userID),
		slog.String("ibs_type", classification.IBSType),
		slog.Float64("confidence", classification.Confidence),
	)
	return result, nil
}

// Latest 返回用户最近一次评估，不存在时返回 NOT_FOUND。
func (s *Service) Latest(ctx context.Context, userID string) (Record, error) {
	var record Record
	if err := s.docs.Get(ctx, store.CollectionAssessments, userID, latestDocID, &record); err != nil {
		if xerrors.IsCode(err, xerrors.CodeNotFound) {
			return Record{}, xerrors.New(xerrors.CodeNotFound, "尚未完成评估")
		}
		return Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取评估结果失败")
	}
	return record, nil
}

// Classification 返回最近一次评估的亚型与严重程度。
func (s *Service) Classification(ctx context.Context, userID string) (string, string, error) {
	record, err := s.Latest(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return record.Classification.IBSType, record.Classification.Severity, nil
}

// Profile 读取用户档案。
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	var profile Profile
	err := s.docs.Get(ctx, store.CollectionProfiles, userID, profileDocID, &profile)
	return profile, err
}

// updateProfile 在已有档案上合并评估字段，保留其他字段。
func (s *Service) updateProfile(ctx context.Context, userID, email string, result Result) error {
	profile, err := s.Profile(ctx, userID)
	if err != nil && !xerrors.IsCode(err, xerrors.CodeNotFound) {
		return err
	}
	if email = strings.TrimSpace(email); email != "" {
		profile.Email = email
	}
	profile.IBSType = result.Classification.IBSType
	profile.AssessmentCompleted = true
	profile.AssessmentDate = result.CompletedAt
	profile.UpdatedAt = result.CompletedAt
	return s.docs.Put(ctx, store.CollectionProfiles, userID, profileDocID, "", profile)
}

func validateAnswers(answers map[string]string) (map[string]string, error) {
	if len(answers) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "答卷不能为空")
	}
	normalized := make(map[string]string, len(answers))
	for id, raw := range answers {
		q, ok := lookup(id)
		if !ok {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的题目: %s", id),
				xerrors.WithMetadata("question_id", id))
		}
		value := strings.TrimSpace(raw)
		switch q.Type {
		case TypeScale:
			n, err := strconv.Atoi(value)
			if err != nil || n < q.Min || n > q.Max {
				return nil, xerrors.New(xerrors.CodeInvalidArgument,
					fmt.Sprintf("题目 %s 需要 %d 到 %d 之间的整数", id, q.Min, q.Max),
					xerrors.WithMetadata("question_id", id))
			}
			value = strconv.Itoa(n)
		default:
			if !contains(q.Options, value) {
				return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("题目 %s 的选项无效: %q", id, raw),
					xerrors.WithMetadata("question_id", id))
			}
		}
		normalized[id] = value
	}
	return normalized, nil
}

// orderedAnswers 按题目顺序输出答卷，保证存储内容稳定。
func orderedAnswers(answers map[string]string) []Answer {
	out := make([]Answer, 0, len(answers))
	for _, q := range questions {
		if v, ok := answers[q.ID]; ok {
			out = append(out, Answer{QuestionID: q.ID, Answer: v})
		}
	}
	return out
}

func contains(options []string, value string) bool {
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}
