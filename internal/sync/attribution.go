package sync

import (
	"github.com/FleetLinkSync/FleetLinkSync/internal/fleet"
)

// PickAssignee 从某时点生效的分配记录中选出责任司机：
// - 主驾标记优先于非主驾
// - 均非主驾时取 assigned_date 最近的一条（确定性规则，
//   避免依赖数据库的未定义返回顺序）
// 无生效分配时返回 false，调用方把事件按"未归因"处理，不算错误。
func PickAssignee(assignments []fleet.VehicleAssignment) (string, bool) {
	if len(assignments) == 0 {
		return "", false
	}

	best := 0
	for i := 1; i < len(assignments); i++ {
		if preferred(&assignments[i], &assignments[best]) {
			best = i
		}
	}
	return assignments[best].EmployeeID, true
}

func preferred(a, b *fleet.VehicleAssignment) bool {
	if a.IsPrimaryDriver != b.IsPrimaryDriver {
		return a.IsPrimaryDriver
	}
	return a.AssignedDate.After(b.AssignedDate)
}
