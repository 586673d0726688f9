// 文件: pkg/exercise/exercise.go
// 行权策略 (European / American / Bermudan)
//
// 逆向归纳每一步都会问一次: "这一步能不能提前行权?"
// - European: 永远不能
// - American: 到期前每一步都能 (到期层本身就是收益)
// - Bermudan: 只有在约定的行权日能

package exercise

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidExerciseSchedule 行权日超出 [0, expiry] 或没有落在格点步上
var ErrInvalidExerciseSchedule = errors.New("invalid exercise schedule")

// alignTol 判断 time·stepsPerDay 是否为整数的容差
const alignTol = 1e-9

// European 欧式: 不提前行权
type European struct{}

func (European) Eligible(int) bool { return false }

// American 美式: 到期前每一步都可行权
type American struct{}

func (American) Eligible(int) bool { return true }

// Bermudan 百慕大: 只在离散的行权步上可行权
type Bermudan struct {
	steps map[int]struct{}
}

// NewBermudan 把行权时间 (交易日) 映射到格点步
// 映射固定为 step = time · stepsPerDay，结果必须是整数，不做四舍五入
// expiry: 到期 (交易日), stepsPerDay: 每个交易日的格点步数
func NewBermudan(times []float64, expiry float64, stepsPerDay int) (Bermudan, error) {
	if stepsPerDay < 1 {
		return Bermudan{}, fmt.Errorf("%w: steps per day %d", ErrInvalidExerciseSchedule, stepsPerDay)
	}
	b := Bermudan{steps: make(map[int]struct{}, len(times))}
	for _, t := range times {
		if math.IsNaN(t) || t < 0 || t > expiry {
			return Bermudan{}, fmt.Errorf("%w: time %v outside [0, %v]", ErrInvalidExerciseSchedule, t, expiry)
		}
		pos := t * float64(stepsPerDay)
		step := math.Round(pos)
		if math.Abs(pos-step) > alignTol {
			return Bermudan{}, fmt.Errorf("%w: time %v does not land on a step (%d steps/day)",
				ErrInvalidExerciseSchedule, t, stepsPerDay)
		}
		b.steps[int(step)] = struct{}{}
	}
	return b, nil
}

func (b Bermudan) Eligible(step int) bool {
	_, ok := b.steps[step]
	return ok
}

// Len 行权步个数 (同一步去重后)
func (b Bermudan) Len() int { return len(b.steps) }

// maxAlignSearch StepsPerDay 向上搜索对齐的最大次数
const maxAlignSearch = 1024

// StepsPerDay 百慕大格点每个交易日的子步数
// 从 ceil(baseSteps / expiry) 起取最小的 n，使 expiry·n 为整数 (总步数与普通格点同量级，
// 每个整数日都落在格点上)。搜索 maxAlignSearch 次仍对不齐时返回起点，由调用方报错。
func StepsPerDay(baseSteps int, expiry float64) int {
	if expiry <= 0 || baseSteps < 1 {
		return 1
	}
	seed := max(int(math.Ceil(float64(baseSteps)/expiry)), 1)
	for n := seed; n < seed+maxAlignSearch; n++ {
		total := expiry * float64(n)
		if math.Abs(total-math.Round(total)) <= alignTol {
			return n
		}
	}
	return seed
}
