package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatingMessage(t *testing.T) {
	tests := []struct {
		name     string
		mean     *float64
		expected string
	}{
		{name: "just below top threshold", mean: ptr(4.59999), expected: "영화면 마냥 다 좋은 '천사 급' 착한 사람♥"},
		{name: "perfect mean", mean: ptr(5.0), expected: "5점 뿌리는 '부처님 급' 아량의 소유자"},
		{name: "between thresholds", mean: ptr(3.05), expected: "작품을 남들보다 진지하고 비판적으로 보는 '지성파'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := RatingMessage(tt.mean)
			require.NotNil(t, msg)
			assert.Equal(t, tt.expected, *msg)
		})
	}

	assert.Nil(t, RatingMessage(nil))
	assert.Nil(t, RatingMessage(ptr(0.4)))
}

func TestRatingMessageBoundaries(t *testing.T) {
	rows := []struct {
		threshold float64
		message   string
	}{
		{4.6, "5점 뿌리는 '부처님 급' 아량의 소유자"},
		{4.4, "영화면 마냥 다 좋은 '천사 급' 착한 사람♥"},
		{4.3, "남 작품에 욕 잘 못하는 착한 품성의 '돌고래 파'"},
		{4.1, "별점에 다소 관대한 경향이 있는 '다 주고파'"},
		{4.0, "남들보다 별점을 조금 후하게 주는 '인심파'"},
		{3.9, "영화를 정말로 즐길 줄 아는 '현명파'"},
		{3.8, "편식 없이 골고루 보는 '균형파'"},
		{3.6, "대중의 평가에 잘 휘둘리지 않는 '지조파'"},
		{3.5, "평가에 있어 주관이 뚜렷한 '소나무파'"},
		{3.4, "대체로 영화를 즐기지만 때론 혹평도 마다치 않는 '이성파'"},
		{3.2, "평가에 상대적으로 깐깐한 '깐새우파'"},
		{3.0, "작품을 남들보다 진지하고 비판적으로 보는 '지성파'"},
		{2.8, "작품을 대단히 냉정하게 평가하는 '냉장고파'"},
		{2.5, "웬만해서는 호평을 하지 않는 매서운 '독수리파'"},
		{2.0, "별점을 대단히 짜게 주는 한줌의 '소금' 같은 분 :)"},
		{1.2, "웬만해선 영화에 만족하지 않는 '헝그리파'"},
		{0.5, "세상 영화들에 불만이 많으신 '개혁파'"},
	}

	for i, row := range rows {
		t.Run(fmt.Sprintf("%.1f", row.threshold), func(t *testing.T) {
			msg := RatingMessage(ptr(row.threshold))
			require.NotNil(t, msg)
			assert.Equal(t, row.message, *msg)

			below := RatingMessage(ptr(row.threshold - 1e-9))
			if i == len(rows)-1 {
				assert.Nil(t, below)
				return
			}
			require.NotNil(t, below)
			assert.Equal(t, rows[i+1].message, *below)
		})
	}
}

func TestViewingMessage(t *testing.T) {
	msg := ViewingMessage(0)
	require.NotNil(t, msg)
	assert.Equal(t, "평가하는거 나름 되게 재밌는데 어서 더 평가를...", *msg)

	msg = ViewingMessage(450)
	require.NotNil(t, msg)
	assert.Equal(t, "이제 자기만의 영화보는 관점이 생기셨을 거예요.", *msg)

	assert.Nil(t, ViewingMessage(10000))
}

func TestViewingMessageBoundaries(t *testing.T) {
	rows := []struct {
		bound   int
		message string
	}{
		{100, "평가하는거 나름 되게 재밌는데 어서 더 평가를..."},
		{200, "영화 본 시간으로 아직 평균에 못 미쳐요ㅠ"},
		{300, "상위 30%만큼 영화를 보셨어요. 그래도 상위권!"},
		{400, "이제 자기만의 영화보는 관점이 생기셨을 거예요."},
		{500, "이제 자기만의 영화보는 관점이 생기셨을 거예요."},
		{600, "인생의 3주는 순수하게 영화 본 시간. 대단합니다."},
		{750, "일주일에 두 편씩 1년이면 상위 5% 매니아예요."},
		{800, "단언컨대 이 정도면 어디 가서 영화로 꿀리진 않을겁니다."},
		{950, "상위 5% 진입! 공식적인 영화인입니다."},
		{1100, "대..대단합니다. 순수 영화 본 시간 1000시간 돌파!"},
		{1200, "영화 본 시간으로 상위 3%! 왓챠가 보증하는 영화 내공인!"},
		{1350, "살면서 순수하게 영화 본 시간 50일 돌파! 상상이 되세요?"},
		{1500, "이 정도면 영화에서 인생을 통째로 배웠을 수준."},
		{1600, "영화를 공부하는 영화학도가 보통 이 정도 본답니다."},
		{1700, "상위 0.1%의 고지가 저 앞에 보여요."},
		{1950, "상위 0.1%의 왓챠 보증 '1등급 영화 내공인'"},
		{2400, "영화 1000작을 넘게 본 영화 '아마추어 영화인'"},
		{2700, "100일 동안 영화 본 '웅녀급 영화인'"},
		{3000, "영화 감독을 꿈꿀지 모를 '영화 프로페셔널'"},
		{3500, "3000시간을 영화 본 '상위 0.03%의 매니아'"},
		{4000, "상위 0.01%에 꼽히는 '베테랑 사회인'"},
		{5000, "국내에 몇 안되는 '영화 Expert'"},
		{6529, "영화가 즉 삶 그 자체인 '영화 장인'"},
		{7711, "경지에 도달한 'Film Master'"},
	}

	for i, row := range rows {
		t.Run(fmt.Sprintf("%d", row.bound), func(t *testing.T) {
			msg := ViewingMessage(row.bound - 1)
			require.NotNil(t, msg)
			assert.Equal(t, row.message, *msg)

			at := ViewingMessage(row.bound)
			if i == len(rows)-1 {
				assert.Nil(t, at)
				return
			}
			require.NotNil(t, at)
			assert.Equal(t, rows[i+1].message, *at)
		})
	}
}
